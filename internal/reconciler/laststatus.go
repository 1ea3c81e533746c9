package reconciler

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tmbmode/feishu-wiki-sync/internal/utils"
	"github.com/tmbmode/feishu-wiki-sync/internal/workspace"
)

// LastSyncStatus is the persisted record of the most recently completed
// reconciliation pass, read back by `daemon status` so an operator can
// see sync health without tailing logs.
type LastSyncStatus struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Summary   string    `json:"summary"`
}

// WriteLastSyncStatus records result as the workspace's last-sync
// status, overwriting whatever was recorded before.
func WriteLastSyncStatus(ws *workspace.Workspace, reason string, result Result) error {
	status := LastSyncStatus{Timestamp: time.Now(), Reason: reason, Summary: Summary(result)}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(ws.LastSyncPath, data, 0o644)
}

// ReadLastSyncStatus loads the workspace's last-sync status, or returns
// an error if no reconciliation pass has completed yet.
func ReadLastSyncStatus(ws *workspace.Workspace) (*LastSyncStatus, error) {
	data, err := os.ReadFile(ws.LastSyncPath)
	if err != nil {
		return nil, err
	}
	var status LastSyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
