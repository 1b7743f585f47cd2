//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"time"

	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/events"
)

func (pe *PolicyEngine) buildRecord(e *evaluation, started time.Time) *events.AccessRecord {
	d := e.decision

	record := &events.AccessRecord{
		Metadata: events.Metadata{
			ID:        d.ID,
			Timestamp: started.UTC(),
			Env:       pe.auditEnv,
		},
		Principal: events.Principal{
			Subject: e.request.Principal.User,
			Groups:  e.request.Principal.Groups,
		},
		Action:          string(e.action),
		Resource:        e.path.String(),
		Tags:            e.tags,
		Decision:        events.Deny,
		References:      e.references(),
		SnapshotVersion: d.SnapshotVersion,
		Duration:        safeNanos(time.Since(started)),
	}
	if d.Outcome == types.Allow {
		record.Decision = events.Allow
		record.RowFilter = d.RowFilter.String()
		if len(d.ColumnMasks) > 0 {
			record.MaskedColumns = d.MaskedColumns()
		}
	}
	return record
}

func (pe *PolicyEngine) auditDecision(aos *options.AuthzOptions, record *events.AccessRecord) {
	if logger.IsDebugEnabled() {
		logger.Debugf(agent, "auditDecision", "resource: %s, decision: %s, options: %+v", record.Resource, record.Decision, aos)
		logger.Debug(agent, "auditDecision", "access record:")
		if err := common.PrettyPrint(logger.Out(), record); err != nil {
			logger.Debugf(agent, "auditDecision", "unable to print access record: %v", err)
		}
	}

	if pe.audit != nil && !aos.Probe {
		err := pe.audit.Send(record)
		if err != nil {
			logger.Errorf(agent, "auditDecision", "unable to send message for accesslog %+v", err)
		}
	}
}
