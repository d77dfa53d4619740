package backup

// FileState is the classification a file receives in a scan or reconcile pass.
type FileState int

const (
	// StateUntracked files have no record yet and are copied for the first time.
	StateUntracked FileState = iota
	// StateMissingBackup files have a record but their backup copy is gone.
	StateMissingBackup
	// StateChanged files failed the three way hash check and are copied again.
	StateChanged
	// StateUnchanged files passed the hash check.
	StateUnchanged
	// StateDeleted files have a record but no longer exist at the source.
	StateDeleted
)

func (s FileState) String() string {
	switch s {
	case StateUntracked:
		return "untracked"
	case StateMissingBackup:
		return "missing-backup"
	case StateChanged:
		return "changed"
	case StateUnchanged:
		return "unchanged"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Copies reports whether a file in this state is written to the backup.
func (s FileState) Copies() bool {
	return s == StateUntracked || s == StateMissingBackup || s == StateChanged
}

// hashesAgree is the three way check between the stored, current source and
// backup hashes. It only fails when the source differs from both of the
// others: a source matching either the record or the backup copy counts as
// unchanged.
func hashesAgree(stored, source, backup string) bool {
	return !(stored != source && source != backup)
}
