// Package internal wires the services shared by all HTTP handlers
package internal

import (
	"bitwise74/docstring-api/internal/service"
	"bitwise74/docstring-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	DB         *gorm.DB
	Argon      *security.ArgonHash
	Tokens     *security.Tokens
	Identities *service.Identities
	Docstrings *service.Docstrings
	History    *service.History
	Admin      *service.Admin
	Accounts   *service.Accounts
}
