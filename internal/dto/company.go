package dto

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/noah-isme/corp-reports/internal/models"
)

// CompanyID accepts both string and numeric ids from GET /companies.
type CompanyID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *CompanyID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = CompanyID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*id = CompanyID(n.String())
	return nil
}

// CompanyResponse is one element of the GET /companies payload.
type CompanyResponse struct {
	ID            CompanyID `json:"id"`
	AccountNumber string    `json:"accountNumber"`
	Name          string    `json:"name"`
}

// ToAccount maps the wire shape onto the domain model.
func (c CompanyResponse) ToAccount() models.Account {
	return models.Account{
		ID:            string(c.ID),
		DisplayName:   strings.TrimSpace(c.Name),
		AccountNumber: strings.TrimSpace(c.AccountNumber),
	}
}
