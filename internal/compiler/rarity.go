package compiler

import (
	"math"

	"blockpatterns.dev/internal/palette"
)

// Rarity estimates how often a block id occurs in a world, in [0,1].
type Rarity interface {
	Frequency(id string) (float64, bool)
}

// FrequencyTable is a Rarity backed by a map of namespaced ids.
type FrequencyTable map[string]float64

func (t FrequencyTable) Frequency(id string) (float64, bool) {
	f, ok := t[palette.NormalizeID(id)]
	return f, ok
}

// DefaultRarity covers the blocks that dominate generated terrain; anything
// else is treated as rare.
var DefaultRarity = FrequencyTable{
	"minecraft:air":           0.55,
	"minecraft:cave_air":      0.02,
	"minecraft:stone":         0.18,
	"minecraft:deepslate":     0.08,
	"minecraft:dirt":          0.04,
	"minecraft:grass_block":   0.02,
	"minecraft:water":         0.04,
	"minecraft:sand":          0.01,
	"minecraft:gravel":        0.005,
	"minecraft:andesite":      0.01,
	"minecraft:diorite":       0.01,
	"minecraft:granite":       0.01,
	"minecraft:tuff":          0.005,
	"minecraft:netherrack":    0.01,
	"minecraft:bedrock":       0.003,
	"minecraft:oak_leaves":    0.003,
	"minecraft:short_grass":   0.003,
	"minecraft:oak_log":       0.001,
	"minecraft:cobblestone":   0.001,
	"minecraft:oak_planks":    0.0005,
	"minecraft:lava":          0.001,
	"minecraft:coal_ore":      0.001,
	"minecraft:iron_ore":      0.0007,
	"minecraft:snow":          0.002,
	"minecraft:clay":          0.0005,
	"minecraft:terracotta":    0.001,
	"minecraft:sandstone":     0.003,
	"minecraft:ice":           0.001,
	"minecraft:copper_ore":    0.0005,
	"minecraft:glass":         0.0001,
	"minecraft:gold_block":    0.00001,
	"minecraft:iron_block":    0.00001,
	"minecraft:diamond_block": 0.000001,
}

const (
	unknownFrequency = 0.0001
	minFrequency     = 1e-9
)

// information returns -log2(p) for a cell that accepts materials with the
// given required property count. Each required property is assumed to halve
// the probability.
func information(reg *palette.Registry, rarity Rarity, materials palette.Bitset, props int) float64 {
	p := 0.0
	materials.Each(func(m palette.Material) {
		f, ok := rarity.Frequency(reg.Name(m))
		if !ok {
			f = unknownFrequency
		}
		p += f
	})
	if p > 1 {
		p = 1
	}
	if p < minFrequency {
		p = minFrequency
	}
	return -math.Log2(p) + float64(props)
}
