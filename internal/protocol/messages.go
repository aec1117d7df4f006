package protocol

// Message types carried in the "type" field.
const (
	TypeRegister       = "register"
	TypeHeartbeat      = "heartbeat"
	TypePing           = "ping"
	TypePong           = "pong"
	TypeAgentList      = "agent_list"
	TypeStatusResponse = "status_response"
)

// Commands carried in the "command" field.
const (
	CommandRunBenchmark = "run_benchmark"
	CommandStatus       = "status"
	CommandPing         = "ping"

	CommandRunAll      = "run_all"
	CommandRunSpecific = "run_specific"
	CommandGetAgents   = "get_agents"
	CommandStatusCheck = "status_check"
)

// Agent status values reported in status responses and error results.
const (
	StatusIdle  = "idle"
	StatusBusy  = "busy"
	StatusError = "error"
)

type Register struct {
	Type     string `json:"type"`
	Machine  string `json:"machine"`
	Hostname string `json:"hostname,omitempty"`
}

func NewRegister(machine, hostname string) Register {
	return Register{Type: TypeRegister, Machine: machine, Hostname: hostname}
}

type Heartbeat struct {
	Type    string `json:"type"`
	Machine string `json:"machine,omitempty"`
}

func NewHeartbeat(machine string) Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, Machine: machine}
}

// Keepalive is sent by the hub to idle viewers.
type Keepalive struct {
	Type string `json:"type"`
}

func NewKeepalive() Keepalive {
	return Keepalive{Type: TypePing}
}

type AgentList struct {
	Type   string   `json:"type"`
	Agents []string `json:"agents"`
}

// NewAgentList builds a roster message. A nil id slice is encoded as an empty array.
func NewAgentList(ids []string) AgentList {
	if ids == nil {
		ids = []string{}
	}
	return AgentList{Type: TypeAgentList, Agents: ids}
}

// Command is both the hub-to-agent command and the operator-to-hub control request.
type Command struct {
	Command  string   `json:"command"`
	Machines []string `json:"machines,omitempty"`
}

func NewCommand(name string) Command {
	return Command{Command: name}
}

func NewRunSpecific(machines []string) Command {
	return Command{Command: CommandRunSpecific, Machines: machines}
}

type StatusResponse struct {
	Type    string `json:"type"`
	Machine string `json:"machine"`
	Status  string `json:"status"`
}

func NewStatusResponse(machine string, busy bool) StatusResponse {
	status := StatusIdle
	if busy {
		status = StatusBusy
	}
	return StatusResponse{Type: TypeStatusResponse, Machine: machine, Status: status}
}

type Pong struct {
	Type    string `json:"type"`
	Machine string `json:"machine"`
}

func NewPong(machine string) Pong {
	return Pong{Type: TypePong, Machine: machine}
}

// RunError reports a benchmark that failed to start or exited unsuccessfully.
type RunError struct {
	Machine  string `json:"machine"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func NewRunError(machine string, err error, exitCode *int) RunError {
	message := "benchmark failed"
	if err != nil {
		message = err.Error()
	}
	return RunError{Machine: machine, Status: StatusError, Error: message, ExitCode: exitCode}
}
