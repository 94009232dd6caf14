package prompt_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/kiranshivaraju/floorcast/internal/prompt"
	"github.com/stretchr/testify/assert"
)

func TestCompose_Order(t *testing.T) {
	c := prompt.NewComposer("BASE", "floor-v1")

	p := c.Compose("Wide oak planks.", "keep the rug")

	assert.Equal(t, "BASE\n\n# PRODUCT\nWide oak planks.\n\n# PRODUCT HINTS\nkeep the rug", p.Text)
	assert.Equal(t, "floor-v1", p.Version)

	base := strings.Index(p.Text, "BASE")
	frag := strings.Index(p.Text, "Wide oak planks.")
	hint := strings.Index(p.Text, "keep the rug")
	assert.True(t, base < frag && frag < hint)
}

func TestCompose_EmptyFragment(t *testing.T) {
	c := prompt.NewComposer("BASE", "floor-v1")

	p := c.Compose("", "darker tone")
	assert.Equal(t, "BASE\n\n# PRODUCT HINTS\ndarker tone", p.Text)
	assert.NotContains(t, p.Text, "# PRODUCT\n")
}

func TestCompose_NoHint(t *testing.T) {
	c := prompt.NewComposer("BASE", "floor-v1")

	p := c.Compose("Slate tile.", "   ")
	assert.Equal(t, "BASE\n\n# PRODUCT\nSlate tile.", p.Text)
	assert.NotContains(t, p.Text, "HINTS")
}

func TestCompose_BaseOnly(t *testing.T) {
	c := prompt.NewComposer("BASE", "floor-v1")
	assert.Equal(t, "BASE", c.Compose("", "").Text)
}

func TestCompose_DefaultBase(t *testing.T) {
	c := prompt.NewComposer("", "floor-v2")

	p := c.Compose("", "")
	assert.Equal(t, prompt.BaseInstruction, p.Text)
	assert.Equal(t, "floor-v2", c.Version())
}

func TestCompose_Deterministic(t *testing.T) {
	c := prompt.NewComposer("", "floor-v1")
	want := c.Compose("Oak.", "hint")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, c.Compose("Oak.", "hint"))
		}()
	}
	wg.Wait()
}
