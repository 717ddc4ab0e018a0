package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driftflow/driftflow/internal/util"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// DelayExecutor parks the run for a fixed duration, until an absolute time,
// or until a cron schedule next fires. Suspended runs hold no worker; the
// poller picks them back up when the wakeup time arrives.
type DelayExecutor struct {
	Clock core.Clock
}

func (e *DelayExecutor) Type() definition.NodeType {
	return definition.NodeDelay
}

func (e *DelayExecutor) Validate(n *definition.Node) []error {
	var errs []error

	duration := dataString(n.Data, "duration")
	until := dataString(n.Data, "until")
	schedule := dataString(n.Data, "schedule")

	set := 0
	for _, v := range []string{duration, until, schedule} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "duration", Reason: "exactly one of duration, until or schedule is required"})
		return errs
	}

	if duration != "" {
		if d, err := util.ParseInterval(duration); err != nil {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "duration", Reason: err.Error()})
		} else if d <= 0 {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "duration", Reason: "must be positive"})
		}
	}
	if until != "" {
		if _, err := time.Parse(time.RFC3339, until); err != nil {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "until", Reason: "must be an RFC3339 timestamp"})
		}
	}
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "schedule", Reason: err.Error()})
		}
	}

	return errs
}

func (e *DelayExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	target, err := e.target(req)
	if err != nil {
		return models.Fail(err)
	}

	now := e.Clock.Now().UTC()
	if now.Before(target) {
		return &models.NodeResult{Suspend: true, ResumeAt: target}
	}
	return models.Succeed(map[string]any{"delayedUntil": target.Format(time.RFC3339)})
}

// target derives the wakeup time from StartedAt so that resuming after a
// repair or restart lands on the same instant the first visit chose.
func (e *DelayExecutor) target(req *Request) (time.Time, error) {
	started := req.StartedAt.UTC()

	if duration := dataString(req.Data, "duration"); duration != "" {
		d, err := util.ParseInterval(duration)
		if err != nil {
			return time.Time{}, fmt.Errorf("delay node %s has an invalid duration: %w", req.Node.ID, err)
		}
		return started.Add(d), nil
	}

	if until := dataString(req.Data, "until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, fmt.Errorf("delay node %s has an invalid until time: %w", req.Node.ID, err)
		}
		return t.UTC(), nil
	}

	if schedule := dataString(req.Data, "schedule"); schedule != "" {
		spec, err := cron.ParseStandard(schedule)
		if err != nil {
			return time.Time{}, fmt.Errorf("delay node %s has an invalid schedule: %w", req.Node.ID, err)
		}
		return spec.Next(started).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("delay node %s needs one of duration, until or schedule", req.Node.ID)
}
