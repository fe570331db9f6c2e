package snapcast

import "encoding/json"

// Methods consumed by the RPC client, bit-exact for wire compatibility.
const (
	MethodServerGetStatus     = "Server.GetStatus"
	MethodServerGetRPCVersion = "Server.GetRPCVersion"
	MethodServerDeleteClient  = "Server.DeleteClient"
	MethodClientSetVolume     = "Client.SetVolume"
	MethodClientSetLatency    = "Client.SetLatency"
	MethodClientSetName       = "Client.SetName"
	MethodGroupSetMute        = "Group.SetMute"
	MethodGroupSetStream      = "Group.SetStream"
	MethodGroupSetName        = "Group.SetName"
	MethodGroupSetClients     = "Group.SetClients"
)

// Notifications consumed by the RPC client.
const (
	NotifyClientOnVolumeChanged  = "Client.OnVolumeChanged"
	NotifyClientOnLatencyChanged = "Client.OnLatencyChanged"
	NotifyClientOnNameChanged    = "Client.OnNameChanged"
	NotifyClientOnConnect        = "Client.OnConnect"
	NotifyClientOnDisconnect     = "Client.OnDisconnect"
	NotifyGroupOnMute            = "Group.OnMute"
	NotifyGroupOnStreamChanged   = "Group.OnStreamChanged"
	NotifyGroupOnNameChanged     = "Group.OnNameChanged"
	NotifyStreamOnUpdate         = "Stream.OnUpdate"
	NotifyStreamOnProperties     = "Stream.OnProperties"
	NotifyServerOnUpdate         = "Server.OnUpdate"
)

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcFrame is a generic inbound frame: it may be a response (has "id") or
// a notification (no "id", has "method"). The reader loop decodes into
// this shape first, then routes by presence of ID.
type rpcFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// --- wire payloads for the methods/notifications we use ---

type wireClientVolume struct {
	Percent int  `json:"percent"`
	Muted   bool `json:"muted"`
}

type wireClientConfig struct {
	Name string `json:"name"`
}

type wireClient struct {
	ID      string            `json:"id"`
	Host    wireClientHost    `json:"host"`
	Config  wireClientConfig  `json:"config"`
	Connected bool            `json:"connected"`
	Volume  wireClientVolume  `json:"volume"`
	Latency int               `json:"latency"`
}

type wireClientHost struct {
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

type wireGroup struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Muted    bool         `json:"muted"`
	StreamID string       `json:"stream_id"`
	Clients  []wireClient `json:"clients"`
}

type wireStream struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	URI        wireStreamURI  `json:"uri"`
	Properties map[string]any `json:"properties"`
}

type wireStreamURI struct {
	Raw string `json:"raw"`
}

type wireServer struct {
	Groups  []wireGroup  `json:"groups"`
	Streams []wireStream `json:"streams"`
	Server  wireServerInfo `json:"server"`
}

type wireServerInfo struct {
	Host struct {
		Name string `json:"name"`
	} `json:"host"`
	Snapserver struct {
		Version         string `json:"version"`
		ProtocolVersion int    `json:"protocolVersion"`
	} `json:"snapserver"`
}

type wireGetStatusResult struct {
	Server wireServer `json:"server"`
}

type wireGetRPCVersionResult struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// --- notification payloads ---

type notifyClientVolume struct {
	ID     string            `json:"id"`
	Volume wireClientVolume  `json:"volume"`
}

type notifyClientLatency struct {
	ID      string `json:"id"`
	Latency int    `json:"latency"`
}

type notifyClientName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type notifyClientConnection struct {
	ID     string     `json:"id"`
	Client wireClient `json:"client"`
}

type notifyGroupMute struct {
	ID    string `json:"id"`
	Mute  bool   `json:"mute"`
}

type notifyGroupStream struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
}

type notifyGroupName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type notifyStreamUpdate struct {
	ID     string     `json:"id"`
	Stream wireStream `json:"stream"`
}

type notifyStreamProperties struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}
