package v1

// WriteValue body of a user write.
type WriteValue struct {
	Value interface{} `json:"value"`
}
