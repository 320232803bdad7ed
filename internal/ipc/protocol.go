package ipc

// Control commands understood by the daemon.
const (
	CommandStatus     = "status"
	CommandScan       = "scan"
	CommandStopScan   = "stop-scan"
	CommandSend       = "send"
	CommandCancelSend = "cancel-send"
	CommandAccept     = "accept"
	CommandDecline    = "decline"
	CommandToggle     = "toggle"
	CommandRestart    = "restart"
	CommandSet        = "set"
	CommandPeers      = "peers"
	CommandWrite      = "write"
)

type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type Response struct {
	OK      bool    `json:"ok"`
	State   string  `json:"state,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
	Peers   []Peer  `json:"peers,omitempty"`
}

type Peer struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Status is a snapshot of the daemon's coordinators.
type Status struct {
	Relay      string `json:"relay"`
	Scanning   bool   `json:"scanning"`
	Sending    bool   `json:"sending"`
	Handshake  string `json:"handshake"`
	OfferFrom  string `json:"offer_from,omitempty"`
	OfferFiles int    `json:"offer_files,omitempty"`
	Name       string `json:"name"`
	ListenPort int    `json:"listen_port"`
	TargetPort int    `json:"target_port"`
	Adapter    string `json:"adapter,omitempty"`
	DevMode    bool   `json:"dev_mode,omitempty"`
}

// Failure builds an unsuccessful response.
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
