package conflict

import "github.com/ghanavoice/ledger/pkg/transaction"

// ResolveTransaction never auto-merges: a create conflict (the remote
// already holds an id the local side believed it was the first to assign)
// always keeps the local copy, since it is the authoritative
// vendor-recorded event; an edit conflict keeps whichever side has the
// later timestamp.
func ResolveTransaction(local, remote transaction.Transaction, meta Metadata, isCreate bool) (transaction.Transaction, Strategy) {
	if isCreate {
		return local, LocalWins
	}
	if meta.RemoteTS.After(meta.LocalTS) {
		return remote, TimestampWins
	}
	return local, TimestampWins
}
