package vmedia

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is a state of the install workflow.
type State string

const (
	StateIdle              State = "idle"
	StatePoweringOff       State = "powering_off"
	StateMediaMounting     State = "media_mounting"
	StateBootConfiguring   State = "boot_configuring"
	StatePoweringOn        State = "powering_on"
	StateAwaitingReadiness State = "awaiting_readiness"
	StateCleaningUp        State = "cleaning_up"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

// Step names reported in a failed Result.
const (
	StepPowerOff = "power_off"
	StepMountISO = "mount_iso"
	StepSetBoot  = "set_boot"
	StepPowerOn  = "power_on"
)

// Result is the terminal artifact of one install run.
type Result struct {
	RunID      uuid.UUID `json:"run_id"`
	Target     string    `json:"target"`
	Succeeded  bool      `json:"succeeded"`
	FailedStep string    `json:"failed_step,omitempty"`
	// Cause is why FailedStep failed.
	Cause  error   `json:"-"`
	States []State `json:"states"`
	// ReadinessReached is nil when the readiness check was not run.
	ReadinessReached *bool     `json:"readiness_reached,omitempty"`
	CleanupOK        bool      `json:"cleanup_ok"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Message is the human readable outcome.
func (r Result) Message() string {
	if r.Succeeded {
		return "Installation SUCCESS"
	}
	return "Installation FAILED"
}

// MarshalJSON adds the cause as a string.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Cause != nil {
		out.Error = r.Cause.Error()
	}
	return json.Marshal(out)
}
