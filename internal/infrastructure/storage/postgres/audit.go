package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "alma/internal/core/context"
	"alma/internal/core/entity"
	"alma/internal/core/id"
	"alma/internal/domain/eav"
)

// CompressionAlgo labels how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one attribute change record in eav_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          string          `db:"entity_id"`
	Attribute         string          `db:"attribute"`
	Action            string          `db:"action"`
	RequestID         string          `db:"request_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

var _ eav.AuditLogger = (*AuditService)(nil)

// AuditService records attribute changes to eav_audit. Payloads above the
// threshold (large json or text values) are zstd-compressed.
type AuditService struct {
	txManager *TxManager
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder

	compressThreshold int
}

// NewAuditService creates an audit service with a 10KB compression
// threshold.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// LogChange records one attribute change with its old and new values.
func (s *AuditService) LogChange(ctx context.Context, ref entity.Ref, attribute string, action eav.AuditAction, oldValue, newValue any) error {
	changes, err := json.Marshal(map[string]any{"old": oldValue, "new": newValue})
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry := AuditEntry{
		ID:              id.New(),
		EntityType:      ref.Type,
		EntityID:        ref.ID,
		Attribute:       attribute,
		Action:          string(action),
		RequestID:       appctx.GetRequestID(ctx),
		Changes:         changes,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("eav_audit").
		SetMap(StructToMap(entry))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	_, err = s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

// History retrieves the change history of one attribute path, newest first.
// An empty attribute matches every attribute of the entity.
func (s *AuditService) History(ctx context.Context, ref entity.Ref, attribute string, limit int) ([]AuditEntry, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(ExtractDBColumns[AuditEntry]()...).
		From("eav_audit").
		Where(squirrel.Eq{"entity_type": ref.Type, "entity_id": ref.ID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if attribute != "" {
		q = q.Where(squirrel.Eq{"attribute": attribute})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	for i := range entries {
		if entries[i].CompressionAlgo == CompressionZstd && len(entries[i].ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(entries[i].ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit changes: %w", err)
			}
			entries[i].Changes = decompressed
			entries[i].ChangesCompressed = nil
		}
	}
	return entries, nil
}
