package protocol

// Version is the protocol revision carried in negotiation envelopes. Peers on
// different revisions fail negotiation.
const Version = "1"

// Capabilities declares what one endpoint can do. Both sides exchange their
// sets during negotiation; an operation against a capability the peer did not
// advertise fails without touching the wire.
type Capabilities struct {
	Tools       bool `json:"tools"`
	Prompts     bool `json:"prompts"`
	Resources   bool `json:"resources"`
	Sampling    bool `json:"sampling"`
	Elicitation bool `json:"elicitation"`
}

// Satisfies reports whether c covers every capability required demands.
func (c Capabilities) Satisfies(required Capabilities) bool {
	if required.Tools && !c.Tools {
		return false
	}
	if required.Prompts && !c.Prompts {
		return false
	}
	if required.Resources && !c.Resources {
		return false
	}
	if required.Sampling && !c.Sampling {
		return false
	}
	if required.Elicitation && !c.Elicitation {
		return false
	}
	return true
}

// missing names the capabilities required demands that c lacks.
func (c Capabilities) missing(required Capabilities) []string {
	var out []string
	if required.Tools && !c.Tools {
		out = append(out, "tools")
	}
	if required.Prompts && !c.Prompts {
		out = append(out, "prompts")
	}
	if required.Resources && !c.Resources {
		out = append(out, "resources")
	}
	if required.Sampling && !c.Sampling {
		out = append(out, "sampling")
	}
	if required.Elicitation && !c.Elicitation {
		out = append(out, "elicitation")
	}
	return out
}
