package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/corp-reports/internal/dto"
)

// DefaultCompanies is the account list served by the stub server.
var DefaultCompanies = []dto.CompanyResponse{
	{ID: "1", AccountNumber: "ACME-001", Name: "Acme Corporation"},
	{ID: "2", AccountNumber: "GLBX-002", Name: "Globex Industries"},
	{ID: "3", AccountNumber: "INIT-003", Name: "Initech"},
	{ID: "4", AccountNumber: "UMBR-004", Name: "Umbrella Holdings"},
}

// CompanyHandler serves the corporate account list.
type CompanyHandler struct {
	companies []dto.CompanyResponse
}

// NewCompanyHandler constructs handler. A nil list serves DefaultCompanies.
func NewCompanyHandler(companies []dto.CompanyResponse) *CompanyHandler {
	if companies == nil {
		companies = DefaultCompanies
	}
	return &CompanyHandler{companies: companies}
}

// List responds with the bare JSON array the report client expects.
func (h *CompanyHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.companies)
}

// Lookup returns the company owning accountNumber.
func (h *CompanyHandler) Lookup(accountNumber string) (dto.CompanyResponse, bool) {
	for _, company := range h.companies {
		if company.AccountNumber == accountNumber {
			return company, true
		}
	}
	return dto.CompanyResponse{}, false
}
