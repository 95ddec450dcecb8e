package eav

import "github.com/shopspring/decimal"

// DefaultSetupSpecs returns the built-in catalog installed by the setup
// workflow: extended profile attributes on User (shared polymorphic table)
// and grading attributes on Assessment (dedicated value table).
func DefaultSetupSpecs() []EntityTypeSpec {
	return []EntityTypeSpec{userSpec(), assessmentSpec()}
}

func userSpec() EntityTypeSpec {
	return EntityTypeSpec{
		Name:          "User",
		TableName:     "users",
		Description:   "Extended profile attributes for all user roles",
		EAVFlagColumn: "profile_eav_enabled",
		Groups: []AttributeGroup{
			{
				Category: "common",
				Specs: []AttributeSpec{
					{
						Name:        "preferred_name",
						DisplayName: "Preferred Name",
						ValueType:   TypeString,
					},
					{
						Name:        "date_of_birth",
						DisplayName: "Date of Birth",
						ValueType:   TypeDate,
					},
					{
						Name:        "phone_secondary",
						DisplayName: "Secondary Phone",
						ValueType:   TypeString,
						Rules:       ValidationRules{Pattern: `^\+?[0-9 ()-]{7,20}$`},
					},
					{
						Name:        "emergency_contact",
						DisplayName: "Emergency Contact",
						Description: "Name, relation and phone as a structured document",
						ValueType:   TypeJSON,
					},
					{
						Name:         "newsletter_opt_in",
						DisplayName:  "Newsletter Opt-In",
						ValueType:    TypeBoolean,
						DefaultValue: strptr("false"),
					},
				},
			},
			{
				Category: "student",
				Specs: []AttributeSpec{
					{
						Name:        "student_gpa",
						DisplayName: "GPA",
						ValueType:   TypeDecimal,
						Rules:       ValidationRules{Min: dec("0"), Max: dec("4")},
					},
					{
						Name:        "enrollment_year",
						DisplayName: "Enrollment Year",
						ValueType:   TypeInteger,
						Rules:       ValidationRules{Min: dec("1900"), Max: dec("2100")},
					},
					{
						Name:        "enrollment_status",
						DisplayName: "Enrollment Status",
						ValueType:   TypeString,
						Rules: ValidationRules{
							Enum: []string{"enrolled", "on_leave", "graduated", "withdrawn"},
						},
						DefaultValue: strptr("enrolled"),
					},
					{
						Name:          "scholarships",
						DisplayName:   "Scholarships",
						ValueType:     TypeString,
						IsMultiValued: true,
					},
					{
						Name:        "academic_notes",
						DisplayName: "Academic Notes",
						ValueType:   TypeText,
					},
				},
			},
			{
				Category: "instructor",
				Specs: []AttributeSpec{
					{
						Name:        "office_location",
						DisplayName: "Office Location",
						ValueType:   TypeString,
					},
					{
						Name:        "office_hours",
						DisplayName: "Office Hours",
						ValueType:   TypeJSON,
					},
					{
						Name:          "qualifications",
						DisplayName:   "Qualifications",
						ValueType:     TypeString,
						IsMultiValued: true,
					},
					{
						Name:        "hire_date",
						DisplayName: "Hire Date",
						ValueType:   TypeDate,
					},
					{
						Name:        "teaching_load",
						DisplayName: "Teaching Load",
						Description: "Weekly contact hours",
						ValueType:   TypeDecimal,
						Rules: ValidationRules{
							Min: dec("0"),
							Max: dec("60"),
							// Loads below one hour are not schedulable.
							Expr: "value == 0.0 || value >= 1.0",
						},
					},
				},
			},
			{
				Category: "parent",
				Specs: []AttributeSpec{
					{
						Name:        "relationship",
						DisplayName: "Relationship to Student",
						ValueType:   TypeString,
						Rules: ValidationRules{
							Enum: []string{"mother", "father", "guardian", "other"},
						},
					},
					{
						Name:        "preferred_contact_time",
						DisplayName: "Preferred Contact Time",
						ValueType:   TypeString,
						Rules: ValidationRules{
							Enum: []string{"morning", "afternoon", "evening"},
						},
					},
					{
						Name:         "receives_reports",
						DisplayName:  "Receives Progress Reports",
						ValueType:    TypeBoolean,
						DefaultValue: strptr("true"),
					},
				},
			},
			{
				Category: "staff",
				Specs: []AttributeSpec{
					{
						Name:        "department",
						DisplayName: "Department",
						ValueType:   TypeString,
					},
					{
						Name:        "position_title",
						DisplayName: "Position Title",
						ValueType:   TypeString,
					},
					{
						Name:        "access_level",
						DisplayName: "Access Level",
						ValueType:   TypeInteger,
						Rules:       ValidationRules{Min: dec("1"), Max: dec("5")},
					},
					{
						Name:        "contract_end",
						DisplayName: "Contract End",
						ValueType:   TypeDatetime,
					},
				},
			},
		},
	}
}

func assessmentSpec() EntityTypeSpec {
	return EntityTypeSpec{
		Name:                   "Assessment",
		TableName:              "assessments",
		Description:            "Grading configuration attributes",
		UseEntitySpecificTable: true,
		Groups: []AttributeGroup{
			{
				Category: "grading",
				Specs: []AttributeSpec{
					{
						Name:        "rubric",
						DisplayName: "Rubric",
						Description: "Criteria and level descriptors",
						ValueType:   TypeJSON,
					},
					{
						Name:        "weight",
						DisplayName: "Weight",
						Description: "Share of the final grade",
						ValueType:   TypeDecimal,
						Rules:       ValidationRules{Min: dec("0"), Max: dec("1")},
					},
					{
						Name:         "max_score",
						DisplayName:  "Maximum Score",
						ValueType:    TypeDecimal,
						Rules:        ValidationRules{Min: dec("0")},
						DefaultValue: strptr("100"),
					},
					{
						Name:         "allow_retakes",
						DisplayName:  "Allow Retakes",
						ValueType:    TypeBoolean,
						DefaultValue: strptr("false"),
					},
					{
						Name:        "retake_limit",
						DisplayName: "Retake Limit",
						ValueType:   TypeInteger,
						Rules:       ValidationRules{Min: dec("0"), Max: dec("10")},
					},
				},
			},
		},
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strptr(s string) *string { return &s }
