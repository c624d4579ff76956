package ledger

import "ledger/internal/backend"

// Receipt is a file chosen in the upload dialog.
type Receipt = backend.Receipt
