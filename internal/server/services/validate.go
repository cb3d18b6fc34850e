package services

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
)

const (
	maxNameLength     = 100
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(v *common.ValidationError, email string) {
	if email == "" {
		v.Add("email", "is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		v.Add("email", "must be a valid email address")
	}
}

func checkName(v *common.ValidationError, name string) {
	switch {
	case name == "":
		v.Add("name", "is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		v.Add("name", "must be at most 100 characters")
	}
}

func checkPassword(v *common.ValidationError, field, password string) {
	switch {
	case password == "":
		v.Add(field, "is required")
	case utf8.RuneCountInString(password) < minPasswordLength:
		v.Add(field, "must be at least 8 characters")
	case len(password) > maxPasswordBytes:
		v.Add(field, "must be at most 72 bytes")
	}
}

func checkRole(v *common.ValidationError, role models.Role) {
	if !role.Valid() {
		v.Add("role", "must be ADMIN or SUPER_ADMIN")
	}
}
