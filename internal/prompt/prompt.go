// Package prompt builds the instruction text sent to the image generator.
package prompt

import "strings"

// BaseInstruction is the fixed system instruction prefixed to every prompt.
const BaseInstruction = `UNIVERSAL FLOOR REPLACEMENT (Room -> Target Floor)

GOAL
Replace ONLY the floor in ROOM_IMAGE with the TARGET_FLOOR product so the final image is seamless, photorealistic, and physically consistent with the original scene.

INPUTS
- ROOM_IMAGE: the original interior photo.
- MASK_IMAGE (optional): binary mask; white marks the floor region to replace. When present the edit is strictly limited to it.
- REFERENCE_IMAGE_n: one or more references for the target floor (swatch, close-up, installed photo).

EDIT SCOPE
- Modify ONLY floor pixels. Walls, skirting, furniture, rugs and reflections on non-floor surfaces stay unchanged.
- Preserve all occlusions: objects that overlap the floor remain above the new floor.
- Edges at skirting and thresholds must be clean, without halos or bleeding.

COLOUR FIDELITY
- Match the product colour from REFERENCE_IMAGE_1 exactly in hue, saturation, brightness and warmth.
- Do not change white balance or colours outside the floor.
- Keep the room lighting and shadows, laid over the correct reference colour.

OUTPUT REQUIREMENTS
- Lay the floor at true scale with natural joints; avoid tiling artefacts.
- Keep walls and all non-floor elements identical and sharp.

FAILURE MODES TO AVOID
- Do not introduce new colours, patterns or furniture.
- Do not alter the global colour or contrast of the room.
- Do not miniaturise or overscale planks and tiles.`

const (
	productHeading = "# PRODUCT"
	hintHeading    = "# PRODUCT HINTS"
)

// Prompt is a composed instruction and the version it was built under.
type Prompt struct {
	Text    string
	Version string
}

// Composer turns a product fragment and optional hint into a Prompt.
// It holds no mutable state and is safe for concurrent use.
type Composer struct {
	base    string
	version string
}

// NewComposer returns a Composer. An empty base falls back to BaseInstruction.
func NewComposer(base, version string) *Composer {
	if base == "" {
		base = BaseInstruction
	}
	return &Composer{base: base, version: version}
}

// Version returns the prompt version stamped on every composed prompt.
func (c *Composer) Version() string {
	return c.version
}

// Compose assembles base instruction, product fragment and hint, in that
// order. Empty fragment or hint sections are omitted.
func (c *Composer) Compose(fragment, hint string) Prompt {
	sections := []string{strings.TrimSpace(c.base)}
	if f := strings.TrimSpace(fragment); f != "" {
		sections = append(sections, productHeading+"\n"+f)
	}
	if h := strings.TrimSpace(hint); h != "" {
		sections = append(sections, hintHeading+"\n"+h)
	}
	return Prompt{
		Text:    strings.Join(sections, "\n\n"),
		Version: c.version,
	}
}
