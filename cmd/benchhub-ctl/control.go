package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"benchhub/internal/protocol"
	"benchhub/internal/wsconn"
)

const (
	controlPath = "/ws/control"
	viewerPath  = "/ws"
)

func execute(ctx context.Context, cfg Config, out io.Writer) error {
	switch cfg.Action {
	case actionRunAll:
		return sendCommand(ctx, cfg, out, protocol.NewCommand(protocol.CommandRunAll))
	case actionRun:
		return sendCommand(ctx, cfg, out, protocol.NewRunSpecific(cfg.Machines))
	case actionAgents:
		return listAgents(ctx, cfg, out)
	case actionStatus:
		return collect(ctx, cfg, out, protocol.CommandStatusCheck, protocol.TypeStatusResponse)
	case actionPing:
		return collect(ctx, cfg, out, protocol.CommandPing, protocol.TypePong)
	case actionWatch:
		return watch(ctx, cfg, out)
	default:
		return fmt.Errorf("unknown command %q", cfg.Action)
	}
}

func dial(ctx context.Context, cfg Config, path string) (*wsconn.Conn, error) {
	endpoint, err := wsconn.EndpointURL(cfg.Server, path)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return wsconn.Dial(dialCtx, endpoint, nil, cfg.Timeout)
}

func sendCommand(ctx context.Context, cfg Config, out io.Writer, command protocol.Command) error {
	conn, err := dial(ctx, cfg, controlPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SendJSON(command); err != nil {
		return fmt.Errorf("send %s: %w", command.Command, err)
	}
	if len(command.Machines) > 0 {
		fmt.Fprintf(out, "sent %s to %s\n", command.Command, strings.Join(command.Machines, ", "))
	} else {
		fmt.Fprintf(out, "sent %s\n", command.Command)
	}
	return nil
}

func listAgents(ctx context.Context, cfg Config, out io.Writer) error {
	conn, err := dial(ctx, cfg, controlPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SendJSON(protocol.NewCommand(protocol.CommandGetAgents)); err != nil {
		return fmt.Errorf("send %s: %w", protocol.CommandGetAgents, err)
	}
	for {
		payload, err := conn.Receive(ctx, cfg.Timeout)
		if err != nil {
			return fmt.Errorf("wait for agent list: %w", err)
		}
		envelope, err := protocol.Peek(payload)
		if err != nil || envelope.Type != protocol.TypeAgentList {
			continue
		}
		var list protocol.AgentList
		if err := decode(payload, &list); err != nil {
			return err
		}
		if len(list.Agents) == 0 {
			fmt.Fprintln(out, "no agents connected")
			return nil
		}
		for _, id := range list.Agents {
			fmt.Fprintln(out, id)
		}
		return nil
	}
}

// collect opens a viewer connection before issuing command, so replies broadcast by the hub
// are not missed, then prints frames of replyType until the wait window closes.
func collect(ctx context.Context, cfg Config, out io.Writer, command, replyType string) error {
	viewer, err := dial(ctx, cfg, viewerPath)
	if err != nil {
		return err
	}
	defer viewer.Close()
	// The first frame is always the roster.
	if _, err := viewer.Receive(ctx, cfg.Timeout); err != nil {
		return fmt.Errorf("wait for roster: %w", err)
	}

	if err := sendCommand(ctx, cfg, io.Discard, protocol.NewCommand(command)); err != nil {
		return err
	}

	deadline := time.Now().Add(cfg.Wait)
	replies := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		payload, err := viewer.Receive(ctx, remaining)
		if errors.Is(err, wsconn.ErrTimeout) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("receive: %w", err)
		}
		envelope, err := protocol.Peek(payload)
		if err != nil || envelope.Type != replyType {
			continue
		}
		replies++
		fmt.Fprintln(out, string(payload))
	}
	if replies == 0 {
		fmt.Fprintf(out, "no %s replies within %s\n", replyType, cfg.Wait)
	}
	return nil
}

func watch(ctx context.Context, cfg Config, out io.Writer) error {
	viewer, err := dial(ctx, cfg, viewerPath)
	if err != nil {
		return err
	}
	defer viewer.Close()
	for {
		payload, err := viewer.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil || wsconn.IsExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		if envelope, err := protocol.Peek(payload); err == nil && envelope.Type == protocol.TypePing {
			continue
		}
		fmt.Fprintln(out, string(payload))
	}
}

func decode(payload []byte, value any) error {
	if err := json.Unmarshal(payload, value); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
