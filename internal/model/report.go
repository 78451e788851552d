package model

// ResultsQuery filters the staff results listing and export.
type ResultsQuery struct {
	ExamID  string `form:"exam_id" json:"exam_id" binding:"omitempty,max=128"`
	Faculty string `form:"faculty" json:"faculty" binding:"omitempty,max=128"`
	Page    int    `form:"page" json:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" json:"per_page" binding:"omitempty,min=1,max=100"`
}
