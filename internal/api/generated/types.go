// Пакет generated — типы и маршрутизация JSON API по контракту openapi.yaml.
// Структура повторяет вывод oapi-codegen (chi-server): ServerInterface,
// обёртка с привязкой параметров и HandlerFromMux.
package generated

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Defines values for Group.
const (
	GroupImage Group = "image"
	GroupPdf   Group = "pdf"
	GroupText  Group = "text"
	GroupAudio Group = "audio"
	GroupOther Group = "other"
)

// Group defines model for FileGroup.group and StagedGroup.group.
type Group string

// ActionError defines model for ActionError.
type ActionError struct {
	Message    string `json:"message"`
	StatusCode *int   `json:"statusCode,omitempty"`
}

// ActionResult defines model for ActionResult.
type ActionResult struct {
	Error *ActionError `json:"error,omitempty"`
	Ok    bool         `json:"ok"`
}

// SessionInfo defines model for SessionInfo.
type SessionInfo struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	UserId    string    `json:"user_id"`
}

// FileRecord defines model for FileRecord.
type FileRecord struct {
	Date     string `json:"date"`
	Id       string `json:"id"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
	Size     string `json:"size"`
}

// FileGroup defines model for FileGroup.
type FileGroup struct {
	Accept string       `json:"accept"`
	Files  []FileRecord `json:"files"`
	Group  Group        `json:"group"`
	Icon   string       `json:"icon"`
	Label  string       `json:"label"`
}

// FileListing defines model for FileListing.
type FileListing struct {
	Error  *string      `json:"error,omitempty"`
	Files  []FileRecord `json:"files"`
	Groups []FileGroup  `json:"groups"`
}

// BulkDownloadRequest defines model for BulkDownloadRequest.
type BulkDownloadRequest struct {
	Ids []string `json:"ids"`
}

// DownloadFailure defines model for DownloadFailure.
type DownloadFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BulkDownloadResult defines model for BulkDownloadResult.
type BulkDownloadResult struct {
	BundleId  *openapi_types.UUID `json:"bundle_id,omitempty"`
	Error     *ActionError        `json:"error,omitempty"`
	Failed    []DownloadFailure   `json:"failed"`
	Ok        bool                `json:"ok"`
	Succeeded []string            `json:"succeeded"`
}

// Selection defines model for Selection.
type Selection struct {
	Count int      `json:"count"`
	Ids   []string `json:"ids"`
}

// ToggleRequest defines model for ToggleRequest.
type ToggleRequest struct {
	Id string `json:"id"`
}

// ToggleAllRequest defines model for ToggleAllRequest.
type ToggleAllRequest struct {
	Ids []string `json:"ids"`
}

// StagedFile defines model for StagedFile.
type StagedFile struct {
	Id         openapi_types.UUID `json:"id"`
	MimeType   string             `json:"mime_type"`
	Name       string             `json:"name"`
	PreviewUrl *string            `json:"preview_url,omitempty"`
	Size       string             `json:"size"`
}

// StagedGroup defines model for StagedGroup.
type StagedGroup struct {
	Files []StagedFile `json:"files"`
	Group Group        `json:"group"`
	Icon  string       `json:"icon"`
	Label string       `json:"label"`
}

// StagedListing defines model for StagedListing.
type StagedListing struct {
	Files  []StagedFile  `json:"files"`
	Groups []StagedGroup `json:"groups"`
}

// ObjectName defines model for ObjectName.
type ObjectName = string

// StagedId defines model for StagedId.
type StagedId = openapi_types.UUID

// BundleId defines model for bundleId.
type BundleId = openapi_types.UUID

// CreateBulkDownloadJSONRequestBody defines body for CreateBulkDownload for application/json ContentType.
type CreateBulkDownloadJSONRequestBody = BulkDownloadRequest

// ToggleSelectionJSONRequestBody defines body for ToggleSelection for application/json ContentType.
type ToggleSelectionJSONRequestBody = ToggleRequest

// ToggleAllSelectionJSONRequestBody defines body for ToggleAllSelection for application/json ContentType.
type ToggleAllSelectionJSONRequestBody = ToggleAllRequest
