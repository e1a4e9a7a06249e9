package observerproto

// Version is the observer bootstrap version (separate from the message stream protocol).
const Version = "0.1"

// EncodingPaletteRLE means: base64 of uvarint (palette_index, run_length)
// pairs covering Width*Height cells, row-major.
const EncodingPaletteRLE = "PAL16_RLE_B64"

// HTTP response for GET /v1/observe/bootstrap. Terrain never changes after a
// world is built, so observers fetch it once and follow messages over the
// stream.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	RunID           string      `json:"run_id"`
	StartTick       uint64      `json:"start_tick"`
	WorldParams     WorldParams `json:"world_params"`
	Maps            []MapTiles  `json:"maps"`
	Agents          []AgentInfo `json:"agents"`
}

type WorldParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	Seed             int64   `json:"seed"`
	GameSpeed        float64 `json:"game_speed"`
	VisibilityRadius int     `json:"visibility_radius"`
}

type MapTiles struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Palette  []Terrain `json:"palette"`
	Encoding string    `json:"encoding"`
	Data     string    `json:"data"`
}

type Terrain struct {
	Kind     string `json:"kind"`
	Walkable bool   `json:"walkable"`
}

// AgentInfo is the roster at start; positions follow from MOVEMENT messages.
type AgentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	MapID string `json:"map_id"`
	Pos   [2]int `json:"pos"`
}
