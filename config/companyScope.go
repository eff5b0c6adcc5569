package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/settlement_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const companyColumn = "company_code"

// CompanyScopePlugin scopes queries, updates and deletes to the session's
// company_code when the model carries that column.
//
// NOTE:
// - Raw SQL is not scoped. Callers must filter company_code themselves.
// - System workers opt out via appctx.ContextKeySkipCompanyScope.
type CompanyScopePlugin struct{}

func NewCompanyScopePlugin() *CompanyScopePlugin { return &CompanyScopePlugin{} }

func (p *CompanyScopePlugin) Name() string { return "company_scope" }

func (p *CompanyScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("company_scope:query", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("company_scope:row", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("company_scope:update", companyScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("company_scope:delete", companyScopeCallback); err != nil {
		return err
	}
	return nil
}

func companyScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassCompanyScope(ctx) {
		return
	}
	company := companyFromContext(ctx)
	if company == "" {
		return
	}
	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField(companyColumn) == nil {
		return
	}
	if whereHasCompany(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: companyColumn},
				Value:  company,
			},
		},
	})
}

func companyFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyCompanyCode); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func shouldBypassCompanyScope(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipCompanyScope)
	return ok && v
}

func whereHasCompany(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasCompany(e) {
			return true
		}
	}
	return false
}

func exprHasCompany(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsCompany(v.Column)
	case clause.IN:
		return colIsCompany(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasCompany(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), companyColumn)
	default:
		return false
	}
}

func colIsCompany(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, companyColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, companyColumn)
	default:
		return false
	}
}
