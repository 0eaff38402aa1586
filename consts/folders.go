package consts

// FolderInbox is not a stored folder name: a message state with a NULL
// folder lives in the Inbox. The constant exists for the operations that
// accept folder names from callers.
const (
	FolderInbox = "Inbox"
	FolderJunk  = "Junk Email"
	FolderTrash = "Deleted Items"
)

// BlockedAttachmentExtensions lists filename extensions that cause the
// whole delivery to be rejected. Compared case-insensitively.
var BlockedAttachmentExtensions = []string{
	".exe", ".bat", ".scr", ".ps1", ".vbs", ".cmd", ".js", ".wsf",
}

// BulkLabels are label values that push a message out of the Focused view.
var BulkLabels = []string{"marketing", "social", "promotions", "updates"}
