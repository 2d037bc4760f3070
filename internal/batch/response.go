package batch

// ItemResponse is the wire form of an ItemResult.
type ItemResponse struct {
	Success     bool   `json:"success"`
	Key         string `json:"key,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Response is the wire form of a Summary.
type Response struct {
	Message string         `json:"message"`
	Total   int            `json:"total"`
	Success int            `json:"success"`
	Failed  int            `json:"failed"`
	Results []ItemResponse `json:"results"`
}

// NewResponse converts s. Delete items report Key, copy and move items
// report Source and Destination.
func NewResponse(s *Summary) Response {
	resp := Response{
		Message: s.Message(),
		Total:   s.Total,
		Success: s.Succeeded,
		Failed:  s.Failed,
		Results: make([]ItemResponse, len(s.Results)),
	}
	for i, r := range s.Results {
		item := ItemResponse{Success: r.OK}
		if s.Operation == OpDelete {
			item.Key = r.Source
		} else {
			item.Source = r.Source
			item.Destination = r.Destination
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		resp.Results[i] = item
	}
	return resp
}
