package rachio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rachio/internal/rachio/cloud"
	"github.com/nerrad567/gray-logic-rachio/internal/rachio/command"
)

// Command names accepted on zone targets.
const (
	CmdStart                = "start"
	CmdSetRequestedDuration = "set_requested_duration"
)

// Command names accepted on device targets. CmdStop also works on a zone
// and stops its device.
const (
	CmdStop              = "stop"
	CmdRainDelay         = "rain_delay"
	CmdEnable            = "enable"
	CmdDisable           = "disable"
	CmdRunAll            = "run_all"
	CmdRunNext           = "run_next"
	CmdRunSelected       = "run_selected"
	CmdStartMultiple     = "start_multiple"
	CmdSetRunZones       = "set_run_zones"
	CmdSetDefaultRuntime = "set_default_runtime"
)

// handleMQTTMessage accepts a command from Core. The entity id from the
// topic wins over the payload's device_id. Execution runs off the MQTT callback
// goroutine and is acknowledged on the ack topic.
func (b *Bridge) handleMQTTMessage(entityID string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parsing command: %w", err)
	}
	if entityID != "" {
		cmd.DeviceID = entityID
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.inflightMu.Lock()
	if b.closing {
		b.inflightMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.inflightMu.Unlock()

	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		account, err := b.Execute(ctx, cmd)
		if err != nil {
			b.publishAckError(cmd, account, ErrorCode(err), err.Error())
			return
		}
		b.publishAck(cmd, account, AckAccepted)
	}()
	return nil
}

// Execute runs a command against the connection that owns its target.
//
// Returns:
//   - string: The account that handled the command, "" if none
//   - error: ErrNoConnection, ErrUnknownCommand, ErrInvalidParameters or
//     the command façade's error
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) (string, error) {
	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
		"source", cmd.Source)

	conn, err := b.Owner(cmd.DeviceID)
	if err != nil {
		return "", err
	}

	if zone, ok := conn.store.Zone(cmd.DeviceID); ok {
		return conn.id, executeZoneCommand(ctx, conn.commands, zone.ID, zone.DeviceID, cmd)
	}
	return conn.id, executeDeviceCommand(ctx, conn.commands, cmd.DeviceID, cmd)
}

func executeZoneCommand(ctx context.Context, f *command.Facade, zoneID, deviceID string, cmd CommandMessage) error {
	switch cmd.Command {
	case CmdStart:
		seconds, ok, err := intParam(cmd.Parameters, "duration")
		if err != nil {
			return err
		}
		if !ok {
			seconds = f.DurationFor(zoneID)
		}
		return f.StartZone(ctx, zoneID, seconds)

	case CmdStop:
		return f.StopWatering(ctx, deviceID)

	case CmdSetRequestedDuration:
		seconds, err := requiredInt(cmd.Parameters, "duration")
		if err != nil {
			return err
		}
		return f.SetRequestedDuration(zoneID, seconds)

	default:
		return fmt.Errorf("%w: %q on zone", ErrUnknownCommand, cmd.Command)
	}
}

func executeDeviceCommand(ctx context.Context, f *command.Facade, deviceID string, cmd CommandMessage) error {
	switch cmd.Command {
	case CmdStop:
		return f.StopWatering(ctx, deviceID)

	case CmdRainDelay:
		seconds, err := requiredInt(cmd.Parameters, "duration")
		if err != nil {
			return err
		}
		return f.SetRainDelay(ctx, deviceID, seconds)

	case CmdEnable:
		return f.EnableDevice(ctx, deviceID)

	case CmdDisable:
		return f.DisableDevice(ctx, deviceID)

	case CmdRunAll, CmdRunNext, CmdRunSelected:
		seconds, _, err := intParam(cmd.Parameters, "duration")
		if err != nil {
			return err
		}
		switch cmd.Command {
		case CmdRunAll:
			return f.RunAllZones(ctx, deviceID, seconds)
		case CmdRunNext:
			return f.RunNextZone(ctx, deviceID, seconds)
		default:
			return f.RunSelectedZones(ctx, deviceID, seconds)
		}

	case CmdStartMultiple:
		runs, err := zoneRunsParam(cmd.Parameters)
		if err != nil {
			return err
		}
		return f.StartMultipleZones(ctx, runs)

	case CmdSetRunZones:
		selector, ok, err := stringParam(cmd.Parameters, "zones")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: missing %q", ErrInvalidParameters, "zones")
		}
		return f.SetRunZones(deviceID, selector)

	case CmdSetDefaultRuntime:
		seconds, err := requiredInt(cmd.Parameters, "duration")
		if err != nil {
			return err
		}
		return f.SetDefaultRuntime(deviceID, seconds)

	default:
		return fmt.Errorf("%w: %q on device", ErrUnknownCommand, cmd.Command)
	}
}

func requiredInt(params map[string]any, key string) (int, error) {
	n, ok, err := intParam(params, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrInvalidParameters, key)
	}
	return n, nil
}

// zoneRunsParam reads {"zones": [{"zone_id": "...", "duration": 60}, ...]}.
func zoneRunsParam(params map[string]any) ([]command.ZoneRun, error) {
	raw, ok := params["zones"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a list", ErrInvalidParameters, "zones")
	}

	runs := make([]command.ZoneRun, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: zones[%d] must be an object", ErrInvalidParameters, i)
		}
		zoneID, _, err := stringParam(entry, "zone_id")
		if err != nil {
			return nil, err
		}
		seconds, err := requiredInt(entry, "duration")
		if err != nil {
			return nil, err
		}
		runs = append(runs, command.ZoneRun{ZoneID: zoneID, Seconds: seconds})
	}
	return runs, nil
}

// ErrorCode maps a command error onto an ack error code.
func ErrorCode(err error) string {
	var httpErr *cloud.HTTPError
	var netErr *cloud.NetworkError

	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, command.ErrInvalidArgument):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrNoConnection), errors.Is(err, command.ErrUnknownEntity):
		return ErrCodeNotConfigured
	case errors.Is(err, cloud.ErrRateLimitExceeded):
		return ErrCodeRateLimited
	case errors.Is(err, cloud.ErrInterrupted), isContextErr(err):
		return ErrCodeTimeout
	case errors.Is(err, cloud.ErrCircuitOpen), errors.As(err, &netErr):
		return ErrCodeDeviceUnreachable
	case errors.As(err, &httpErr):
		if httpErr.StatusCode == 429 {
			return ErrCodeRateLimited
		}
		if httpErr.Transient() {
			return ErrCodeDeviceUnreachable
		}
		return ErrCodeRejected
	default:
		return ErrCodeBridgeError
	}
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(cmd CommandMessage, account string, status AckStatus) {
	b.publishAckMessage(NewAckMessage(cmd, status, account))
}

// publishAckError publishes a failed command acknowledgement.
func (b *Bridge) publishAckError(cmd CommandMessage, account, code, message string) {
	b.publishAckMessage(NewAckError(cmd, account, code, message))
	b.logWarn("command failed",
		"command_id", cmd.ID, "device_id", cmd.DeviceID, "code", code, "message", message)
}

func (b *Bridge) publishAckMessage(ack AckMessage) {
	if b.mqtt == nil {
		return
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.PublishAck(ack.DeviceID, payload); err != nil {
		b.logError("failed to publish ack", err)
	}
}
