package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
)

// Form field names used in validation errors.
const (
	FieldCorporateAccount = "corporateAccount"
	FieldDateRange        = "dateRange"
)

type formInput struct {
	AccountNumber string           `validate:"required"`
	DateRange     *models.DayRange `validate:"required_if=RequiresRange true"`
	RequiresRange bool
}

// RequestBuilder validates form input and turns it into ReportCriteria.
type RequestBuilder struct {
	kind      models.ReportKind
	validator *validator.Validate
}

// NewRequestBuilder constructs a builder for one report kind.
func NewRequestBuilder(kind models.ReportKind, validate *validator.Validate) *RequestBuilder {
	if validate == nil {
		validate = validator.New()
	}
	return &RequestBuilder{kind: kind, validator: validate}
}

// Build validates values against the last loaded account list. Failures are
// VALIDATION_ERROR with one message per offending field.
func (b *RequestBuilder) Build(values models.FormValues, accounts []models.Account) (models.ReportCriteria, error) {
	fields := map[string]string{}

	input := formInput{AccountNumber: values.AccountNumber, DateRange: values.DateRange, RequiresRange: b.kind.RequiresDateRange}
	if err := b.validator.Struct(input); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return models.ReportCriteria{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form")
		}
		for _, fe := range verrs {
			switch fe.StructField() {
			case "AccountNumber":
				fields[FieldCorporateAccount] = "corporate account is required"
			case "DateRange":
				fields[FieldDateRange] = "date range is required"
			}
		}
	}

	if _, ok := fields[FieldCorporateAccount]; !ok {
		if _, found := models.FindAccount(accounts, values.AccountNumber); !found {
			fields[FieldCorporateAccount] = "unknown corporate account"
		}
	}

	rng := values.DateRange
	if _, ok := fields[FieldDateRange]; !ok && rng != nil {
		switch {
		case rng.From.IsZero() || rng.To.IsZero():
			fields[FieldDateRange] = "date range needs both a start and an end"
		case !rng.From.Valid() || !rng.To.Valid():
			fields[FieldDateRange] = "invalid date"
		case rng.To.Before(rng.From):
			fields[FieldDateRange] = "start date must not be after end date"
		}
	}

	if len(fields) > 0 {
		verr := appErrors.Clone(appErrors.ErrValidation, "")
		verr.Fields = fields
		return models.ReportCriteria{}, verr
	}

	criteria := models.ReportCriteria{Kind: b.kind, AccountNumber: values.AccountNumber}
	if rng != nil {
		start := rng.From.UTC()
		end := rng.To.UTC()
		criteria.StartDate = &start
		criteria.EndDate = &end
	}
	return criteria, nil
}
