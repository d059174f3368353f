package services

import (
	"strings"

	"job-feed-api/models"
)

// ClassifyImportError maps an error onto the import error taxonomy by
// inspecting its message. Unrecognized errors are "unknown".
func ClassifyImportError(err error) string {
	if err == nil {
		return models.ImportErrorTypeUnknown
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "validation") || strings.Contains(msg, "required"):
		return models.ImportErrorTypeValidation
	case strings.Contains(msg, "sql") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "database"):
		return models.ImportErrorTypeDatabase
	case strings.Contains(msg, "xml") || strings.Contains(msg, "parse"):
		return models.ImportErrorTypeParse
	case strings.Contains(msg, "fetch") || strings.Contains(msg, "network") || strings.Contains(msg, "http"):
		return models.ImportErrorTypeNetwork
	default:
		return models.ImportErrorTypeUnknown
	}
}
