package dataset

import (
	"math/rand"

	"github.com/capserve/capserve/internal/model"
)

// Categorical value pools for synthetic data, aligned with the domain enums.
var (
	sampleEmployment = []string{model.EmploymentEmployed, model.EmploymentSelfEmployed, model.EmploymentUnemployed}
	sampleHousing    = []string{model.HousingOwn, model.HousingRent, model.HousingMortgage, model.HousingOther}
	sampleEducation  = []string{model.EducationHighSchool, model.EducationBachelor, model.EducationMaster, model.EducationPhD}
	sampleMarital    = []string{model.MaritalSingle, model.MaritalMarried, model.MaritalDivorced, model.MaritalWidowed}
)

// GenerateSample produces synthetic application data for demos and tests.
// The approval label follows a weighted score over credit score, income,
// indebtedness and employment history, so models have real signal to learn.
func GenerateSample(n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	records := make([]Record, 0, n)

	for i := 0; i < n; i++ {
		age := float64(18 + rng.Intn(52))           // [18,70)
		income := float64(20000 + rng.Intn(180000)) // [20k,200k)
		creditScore := float64(300 + rng.Intn(550)) // [300,850)
		employmentYears := float64(rng.Intn(40))    // [0,40)
		dti := rng.Float64()                        // [0,1)
		numCards := float64(rng.Intn(10))           // [0,10)
		creditLimit := float64(rng.Intn(100000))    // [0,100k)

		score := (creditScore/850)*0.4 +
			(income/200000)*0.3 +
			(1-dti)*0.2 +
			(employmentYears/40)*0.1

		label := 0
		if score > 0.5 {
			label = 1
		}

		records = append(records, Record{
			Numeric: []float64{
				age,
				income,
				creditScore,
				employmentYears,
				dti,
				numCards,
				creditLimit,
			},
			Categorical: []string{
				sampleEmployment[rng.Intn(len(sampleEmployment))],
				sampleHousing[rng.Intn(len(sampleHousing))],
				sampleEducation[rng.Intn(len(sampleEducation))],
				sampleMarital[rng.Intn(len(sampleMarital))],
			},
			Label: label,
		})
	}

	return records
}
