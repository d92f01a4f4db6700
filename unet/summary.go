package unet

import (
	"fmt"
	"io"
	"sort"

	"github.com/sugarme/gotch/nn"
)

// VarInfo describes a named variable of a VarStore.
type VarInfo struct {
	Name  string
	Shape []int64
	Numel int64
}

// Summary returns variables of vs sorted by name and the total number of parameters.
func Summary(vs *nn.VarStore) ([]VarInfo, int64) {
	vars := vs.Variables()
	infos := make([]VarInfo, 0, len(vars))
	var total int64
	for name, v := range vars {
		x := v
		shape := x.MustSize()
		numel := int64(1)
		for _, d := range shape {
			numel *= d
		}
		total += numel
		infos = append(infos, VarInfo{Name: name, Shape: shape, Numel: numel})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos, total
}

// WriteSummary prints variables sorted by name followed by the parameter count.
func WriteSummary(w io.Writer, vs *nn.VarStore) error {
	infos, total := Summary(vs)
	for _, v := range infos {
		if _, err := fmt.Fprintf(w, "%-40v %v\n", v.Name, v.Shape); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total params: %d\n", total)

	return err
}

// ParamCount returns the number of parameters a model built from cfg has,
// computed from the configuration alone.
func ParamCount(cfg Config) int64 {
	convs := func(cIn, cOut int64, n int, k int64) int64 {
		var total int64
		c := cIn
		for i := 0; i < n; i++ {
			if cfg.BatchNorm {
				// no bias; batch-norm weight, bias, running mean and var.
				total += c*cOut*k*k + 4*cOut
			} else {
				total += c*cOut*k*k + cOut
			}
			c = cOut
		}
		return total
	}
	scse := func(c int64) int64 {
		mid := c / 16
		if mid < 1 {
			mid = 1
		}
		return (c*mid + mid) + (mid*c + c) + (c + 1)
	}

	var total int64
	cIn := cfg.InChannels
	for _, f := range cfg.Filters {
		total += convs(cIn, f, cfg.NumConvs, 3)
		cIn = f
	}
	bridge := cfg.BridgeFilters()
	total += convs(cIn, bridge, 2, 3)

	cIn = bridge
	for i := len(cfg.Filters) - 1; i >= 0; i-- {
		f := cfg.Filters[i]
		if cfg.Upsampling == UpsampleBilinear {
			total += cIn*f + f
		} else {
			total += cIn*f*2*2 + f
		}
		total += convs(2*f, f, cfg.NumConvs, 3)
		if cfg.Attention == AttentionSCSE {
			total += scse(2*f) + scse(f)
		}
		cIn = f
	}
	total += cfg.Filters[0]*cfg.Maps + cfg.Maps

	return total
}
