package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema constrains a decoded configuration. Field names follow the json
// tags on Config.
const schema = `
#Config: {
	heap: {
		initialSpace:    int & >=64
		maxSpace:        int & >=64
		growthFactor:    number & >1
		growthThreshold: number & >0 & <=1
	}
	interp: {
		stackSize: int & >=0
		maxFrames: int & >=0
	}
	log: {
		verbosity: int & >=-1 & <=6
		file:      string
	}
	journal: {
		path: string
	}
}
`

// Validate checks c against the configuration schema and the cross-field
// rules the heap enforces.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	data := ctx.Encode(c)
	if err := data.Err(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := c.HeapConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
