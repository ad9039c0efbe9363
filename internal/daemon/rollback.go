// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"github.com/google/uuid"

	"nipart.dev/nipart/internal/workflow"
)

// handleReaped reacts to one workflow leaving the queue: a successful
// apply is recorded in the commit history, a failed apply triggers a
// rollback workflow built from the pre-apply state it captured, and a
// failed rollback is logged only — it must not re-trigger another
// rollback (spec §4.6: "a failed rollback is logged but does not
// re-trigger").
func (d *Daemon) handleReaped(r workflow.Reaped) {
	switch r.Kind {
	case "apply_net_state":
		if r.Failed {
			d.triggerRollback(r)
			return
		}
		d.recordCommit(r)
	case "rollback_net_state":
		if r.Failed {
			d.log.Error("rollback workflow itself failed; leaving network state as-is", "workflow", r.UUID)
		}
	}
	d.monitor.Resume()
}

func (d *Daemon) recordCommit(r workflow.Reaped) {
	if r.Share == nil || r.Share.DesiredState == nil || r.Share.PreApplyState == nil {
		return
	}
	if _, err := d.commits.Append("apply", r.Share.DesiredState, r.Share.PreApplyState, true); err != nil {
		d.log.Error("failed to record commit for applied state", "error", err)
	}
	for _, iface := range r.Share.DesiredState.Ifaces.All() {
		d.SaveWifiConfig(iface)
	}
}

func (d *Daemon) triggerRollback(r workflow.Reaped) {
	if r.Share == nil || r.Share.PreApplyState == nil {
		d.log.Error("apply workflow failed with no pre-apply state to roll back to", "workflow", r.UUID)
		d.monitor.Resume()
		return
	}
	d.log.Warn("apply workflow failed, rolling back", "workflow", r.UUID)

	w, share := workflow.NewRollbackWorkflow(uuid.New(), r.Share.PreApplyState, d.pluginCount)
	events, err := d.queue.Add(w, share)
	if err != nil {
		d.log.Error("failed to start rollback workflow", "error", err)
		d.monitor.Resume()
		return
	}
	d.forward(events)
}
