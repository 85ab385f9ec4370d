package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type RunRecord struct {
	VersionedRecord
	ID             string        `json:"id"`
	StartedAtUTC   string        `json:"started_at_utc"`
	FinishedAtUTC  string        `json:"finished_at_utc"`
	Status         string        `json:"status"`
	AgentCount     int           `json:"agent_count"`
	EpisodeBudget  int           `json:"episode_budget"`
	TicksPerSecond int           `json:"ticks_per_second"`
	Seed           int64         `json:"seed"`
	Signature      int           `json:"signature"`
	Ticks          int           `json:"ticks"`
	Episodes       int           `json:"episodes"`
	MeanReward     float64       `json:"mean_reward"`
	Message        string        `json:"message"`
	Agents         []AgentResult `json:"agents"`
}

type AgentResult struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Lane      float64 `json:"lane"`
	Threshold float64 `json:"threshold"`
	Rate      float64 `json:"rate"`
	Reward    float64 `json:"reward"`
	Outcome   string  `json:"outcome"`
}

type EpisodeSummary struct {
	Episode       int     `json:"episode"`
	Tick          int     `json:"tick"`
	MeanReward    float64 `json:"mean_reward"`
	MeanThreshold float64 `json:"mean_threshold"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	Jumps         int     `json:"jumps"`
}
