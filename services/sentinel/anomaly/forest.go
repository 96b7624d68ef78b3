// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package anomaly

import (
	"math"
	"math/rand"
)

// ============================================================================
// Isolation Forest - Liu, Ting, Zhou (2008)
// ============================================================================

// maxSubsample caps the per-tree training subsample (ψ). Larger subsamples
// do not improve isolation quality and slow the build.
const maxSubsample = 256

// eulerGamma is the Euler–Mascheroni constant, used in the average
// unsuccessful-search path length of a binary search tree.
const eulerGamma = 0.5772156649015329

// node is a single tree node. Internal nodes carry a split; external nodes
// carry the size of the subsample that terminated there.
type node struct {
	left     *node
	right    *node
	splitCol int
	splitVal float64
	size     int
}

func (n *node) external() bool { return n.left == nil }

// forest is a trained isolation forest.
type forest struct {
	trees []*node
	cPsi  float64
}

// growForest builds nTrees isolation trees over the training vectors.
//
// Each tree trains on a subsample of ψ = min(256, n) vectors drawn without
// replacement, with height limit ⌈log₂ψ⌉. Splits pick a column uniformly
// among those with spread in the node's subsample, then a split value
// uniformly within that column's (min, max). A single seeded source drives
// all sampling, so the forest is a pure function of (train, nTrees, seed).
func growForest(train [][]float64, nTrees int, seed int64) *forest {
	rng := rand.New(rand.NewSource(seed))

	psi := len(train)
	if psi > maxSubsample {
		psi = maxSubsample
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	f := &forest{
		trees: make([]*node, nTrees),
		cPsi:  avgPathLength(psi),
	}
	for i := range f.trees {
		perm := rng.Perm(len(train))
		sample := make([][]float64, psi)
		for j := 0; j < psi; j++ {
			sample[j] = train[perm[j]]
		}
		f.trees[i] = growTree(sample, 0, heightLimit, rng)
	}
	return f
}

// growTree recursively partitions the subsample until it is isolated,
// degenerate, or the height limit is reached.
func growTree(sample [][]float64, depth, heightLimit int, rng *rand.Rand) *node {
	if depth >= heightLimit || len(sample) <= 1 {
		return &node{size: len(sample)}
	}

	dims := len(sample[0])
	splittable := make([]int, 0, dims)
	for col := 0; col < dims; col++ {
		lo, hi := columnRange(sample, col)
		if hi > lo {
			splittable = append(splittable, col)
		}
	}
	if len(splittable) == 0 {
		// All remaining vectors are identical.
		return &node{size: len(sample)}
	}

	col := splittable[rng.Intn(len(splittable))]
	lo, hi := columnRange(sample, col)
	val := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, v := range sample {
		if v[col] < val {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	return &node{
		splitCol: col,
		splitVal: val,
		left:     growTree(left, depth+1, heightLimit, rng),
		right:    growTree(right, depth+1, heightLimit, rng),
	}
}

func columnRange(sample [][]float64, col int) (lo, hi float64) {
	lo, hi = sample[0][col], sample[0][col]
	for _, v := range sample[1:] {
		if v[col] < lo {
			lo = v[col]
		}
		if v[col] > hi {
			hi = v[col]
		}
	}
	return lo, hi
}

// score returns s(x) = 2^(−E[h(x)]/c(ψ)). Values approach 1 for points
// isolated near the root and 0.5 for points indistinguishable from the
// bulk of the training data.
func (f *forest) score(x []float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Exp2(-mean / f.cPsi)
}

// pathLength follows x down the tree; external nodes contribute their
// depth plus the expected further path length for their subsample size.
func pathLength(x []float64, n *node, depth int) float64 {
	if n.external() {
		return float64(depth) + avgPathLength(n.size)
	}
	if x[n.splitCol] < n.splitVal {
		return pathLength(x, n.left, depth+1)
	}
	return pathLength(x, n.right, depth+1)
}

// avgPathLength is c(n): the average unsuccessful-search path length in a
// binary search tree of n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerGamma
		return 2*h - 2*float64(n-1)/float64(n)
	}
}
