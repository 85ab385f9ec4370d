package platform

import "jumptrainer/internal/scape"

// Snapshot is an immutable copy of the driver state at one tick boundary.
// Agents and obstacles keep pool order so consumers can diff by index.
type Snapshot struct {
	Version        uint64         `json:"version"`
	RunID          string         `json:"run_id,omitempty"`
	Status         Status         `json:"status"`
	StatusLabel    string         `json:"status_label"`
	Episode        int            `json:"episode"`
	EpisodeBudget  int            `json:"episode_budget"`
	Tick           int            `json:"tick"`
	TicksPerSecond int            `json:"ticks_per_second"`
	Message        string         `json:"message"`
	MeanReward     float64        `json:"mean_reward"`
	Agents         []AgentView    `json:"agents"`
	Obstacles      []ObstacleView `json:"obstacles"`
}

// clone copies the view slices so the caller owns every element.
func (s Snapshot) clone() Snapshot {
	s.Agents = append(make([]AgentView, 0, len(s.Agents)), s.Agents...)
	s.Obstacles = append(make([]ObstacleView, 0, len(s.Obstacles)), s.Obstacles...)
	return s
}

type AgentView struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Lane           float64 `json:"lane"`
	VerticalOffset float64 `json:"vertical_offset"`
	JumpProgress   float64 `json:"jump_progress"`
	Jumping        bool    `json:"jumping"`
	Threshold      float64 `json:"threshold"`
	Reward         float64 `json:"reward"`
	Outcome        string  `json:"outcome"`
	Symbol         string  `json:"symbol"`
	// ColorIndex selects a palette entry; the palette itself belongs to the renderer.
	ColorIndex int `json:"color_index"`
}

type ObstacleView struct {
	ID       int     `json:"id"`
	Position float64 `json:"position"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

func agentViews(world *scape.World) []AgentView {
	if world == nil {
		return []AgentView{}
	}
	views := make([]AgentView, len(world.Agents))
	for i, a := range world.Agents {
		views[i] = AgentView{
			ID:             a.ID,
			Name:           a.Name,
			Lane:           a.Lane,
			VerticalOffset: a.VerticalOffset(),
			JumpProgress:   a.JumpProgress,
			Jumping:        a.Jumping,
			Threshold:      a.Threshold,
			Reward:         a.Reward,
			Outcome:        a.Outcome.String(),
			Symbol:         a.Outcome.Symbol(),
			ColorIndex:     i % scape.MaxAgents,
		}
	}
	return views
}

func obstacleViews(world *scape.World) []ObstacleView {
	if world == nil {
		return []ObstacleView{}
	}
	views := make([]ObstacleView, len(world.Obstacles))
	for i, o := range world.Obstacles {
		views[i] = ObstacleView{ID: o.ID, Position: o.Position, Width: o.Width, Height: o.Height}
	}
	return views
}
