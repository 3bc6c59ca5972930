package network

// EffectFrame is the out-of-band message asking connected hosts to apply a
// timed effect to a survivor.
type EffectFrame struct {
	Type       string `json:"type"`
	SurvivorID string `json:"survivor_id"`
	Effect     string `json:"effect"`
	Duration   int    `json:"duration"`
	Amplifier  int    `json:"amplifier"`
}

// EffectBroadcaster delivers effects over the WebSocket hub. The connected
// hosts own the actual entities, so application is fire-and-forget here.
// The hub is bound after construction because it needs the engine, and the
// engine needs this applier.
type EffectBroadcaster struct {
	hub *Hub
}

// NewEffectBroadcaster creates an effect applier; Bind attaches the hub.
func NewEffectBroadcaster() *EffectBroadcaster {
	return &EffectBroadcaster{}
}

// Bind attaches the hub. Must be called before the engine starts ticking.
func (b *EffectBroadcaster) Bind(hub *Hub) {
	b.hub = hub
}

// Apply broadcasts an APPLY_EFFECT frame to all connected hosts.
func (b *EffectBroadcaster) Apply(xuid, effect string, durationSeconds, amplifier int) error {
	if b.hub == nil {
		return nil
	}
	b.hub.BroadcastMessage(EffectFrame{
		Type:       "APPLY_EFFECT",
		SurvivorID: xuid,
		Effect:     effect,
		Duration:   durationSeconds,
		Amplifier:  amplifier,
	})
	return nil
}
