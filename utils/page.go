package utils

import (
	"fmt"
	"sort"
	"strings"
)

type PageForm struct {
	Start int    `form:"start"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
	Order string `form:"order"`
	Q     string `form:"q"`
}

func NewPageForm() *PageForm {
	return &PageForm{Limit: -1}
}

type PageResult struct {
	Total int           `json:"total"`
	Rows  []interface{} `json:"rows"`
}

func NewPageResult(rows []interface{}) *PageResult {
	return &PageResult{Total: len(rows), Rows: rows}
}

// Sort orders rows of map[string]interface{} by the named key, string-wise.
func (pr *PageResult) Sort(key, order string) {
	desc := strings.EqualFold(order, "descending")
	sort.SliceStable(pr.Rows, func(i, j int) bool {
		mi, iok := pr.Rows[i].(map[string]interface{})
		mj, jok := pr.Rows[j].(map[string]interface{})
		if !iok || !jok {
			return false
		}
		vi := fmt.Sprintf("%v", mi[key])
		vj := fmt.Sprintf("%v", mj[key])
		if desc {
			return vi > vj
		}
		return vi < vj
	})
}

func (pr *PageResult) Slice(start, limit int) {
	if start < 0 {
		start = 0
	}
	if start > len(pr.Rows) {
		start = len(pr.Rows)
	}
	end := len(pr.Rows)
	if limit >= 0 && start+limit < end {
		end = start + limit
	}
	pr.Rows = pr.Rows[start:end]
}
