package dialog

// ConfirmRequest answers the active dialog. Value is the entered text of
// input dialogs and ignored for the others.
type ConfirmRequest struct {
	Value string `json:"value" binding:"max=1000"`
}
