// Package model defines domain entities for the application.
package model

// Employment status values accepted for an applicant.
const (
	EmploymentEmployed     = "employed"
	EmploymentSelfEmployed = "self_employed"
	EmploymentUnemployed   = "unemployed"
)

// Housing type values accepted for an applicant.
const (
	HousingOwn      = "own"
	HousingRent     = "rent"
	HousingMortgage = "mortgage"
	HousingOther    = "other"
)

// Education level values accepted for an applicant.
const (
	EducationHighSchool = "high_school"
	EducationBachelor   = "bachelor"
	EducationMaster     = "master"
	EducationPhD        = "phd"
)

// Marital status values accepted for an applicant.
const (
	MaritalSingle   = "single"
	MaritalMarried  = "married"
	MaritalDivorced = "divorced"
	MaritalWidowed  = "widowed"
)

// Applicant is a credit card application record: the raw feature set
// consumed by the feature pipeline, before any encoding or scaling.
type Applicant struct {
	Age               int     `json:"age" validate:"required,gte=18,lte=100"`
	AnnualIncome      float64 `json:"annual_income" validate:"required,gt=0"`
	CreditScore       int     `json:"credit_score" validate:"required,gte=300,lte=850"`
	EmploymentYears   int     `json:"employment_years" validate:"gte=0,lte=80"`
	DebtToIncomeRatio float64 `json:"debt_to_income_ratio" validate:"gte=0,lte=1"`
	NumExistingCards  int     `json:"num_existing_credit_cards" validate:"gte=0,lte=50"`
	TotalCreditLimit  float64 `json:"total_credit_limit" validate:"gte=0"`
	EmploymentStatus  string  `json:"employment_status" validate:"required,oneof=employed self_employed unemployed"`
	HousingType       string  `json:"housing_type" validate:"required,oneof=own rent mortgage other"`
	EducationLevel    string  `json:"education_level" validate:"required,oneof=high_school bachelor master phd"`
	MaritalStatus     string  `json:"marital_status" validate:"required,oneof=single married divorced widowed"`
}

// NumericColumns lists the raw numeric feature columns, in canonical order.
// CSV headers and pipeline configuration both use these names.
var NumericColumns = []string{
	"age",
	"annual_income",
	"credit_score",
	"employment_years",
	"debt_to_income_ratio",
	"num_existing_credit_cards",
	"total_credit_limit",
}

// CategoricalColumns lists the raw categorical feature columns, in canonical order.
var CategoricalColumns = []string{
	"employment_status",
	"housing_type",
	"education_level",
	"marital_status",
}

// TargetColumn is the label column in training data.
// 1 = approved (good credit), 0 = rejected.
const TargetColumn = "approval_status"

// Numeric returns the raw numeric feature values in NumericColumns order.
func (a *Applicant) Numeric() []float64 {
	return []float64{
		float64(a.Age),
		a.AnnualIncome,
		float64(a.CreditScore),
		float64(a.EmploymentYears),
		a.DebtToIncomeRatio,
		float64(a.NumExistingCards),
		a.TotalCreditLimit,
	}
}

// Categorical returns the raw categorical feature values in CategoricalColumns order.
func (a *Applicant) Categorical() []string {
	return []string{
		a.EmploymentStatus,
		a.HousingType,
		a.EducationLevel,
		a.MaritalStatus,
	}
}
