package complaint

// FilterRequest replaces the list filter. Status accepts the API code or
// its label; empty fields match everything.
type FilterRequest struct {
	Status       string `json:"status" binding:"max=32"`
	LicensePlate string `json:"license_plate" binding:"max=20"`
	Municipality string `json:"municipality" binding:"max=100"`
	Evidence     string `json:"evidence" binding:"omitempty,oneof=with without"`
	Order        string `json:"order" binding:"omitempty,oneof=newest oldest"`
}

// PageSizeRequest changes the number of rows per page.
type PageSizeRequest struct {
	Size int `json:"size" binding:"required,gte=1"`
}

// StatusRequest asks for a status change. Rejections prompt for their
// reason through a dialog, so Comment is optional.
type StatusRequest struct {
	Status  string `json:"status" binding:"required,max=32"`
	Comment string `json:"comment" binding:"max=1000"`
}

// CommentRequest adds an internal comment.
type CommentRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// FlowResponse acknowledges work that continues through dialogs. Clients
// poll the dialog endpoint from DialogVersion.
type FlowResponse struct {
	DialogVersion uint64 `json:"dialog_version"`
}
