package protocol

// ============================================================================
// DeleteGroups (API Key 42)
// Supported versions: 0-1
// ============================================================================

// ----------------------------------------------------------------------------
// Request
// ----------------------------------------------------------------------------

type DeleteGroupsRequest struct {
	GroupsNames []string
}

// Request Readers

func (r *DeleteGroupsRequest) readGroupsNames(d *Decoder) {
	count, _ := d.ReadInt32()
	if count < 0 {
		return
	}
	r.GroupsNames = make([]string, count)
	for i := range r.GroupsNames {
		r.GroupsNames[i], _ = d.ReadString()
	}
}

// Decode - the recipe

func DecodeDeleteGroupsRequest(d *Decoder, v int16) (*DeleteGroupsRequest, error) {
	r := &DeleteGroupsRequest{}

	r.readGroupsNames(d)                        // v0+

	return r, nil
}

// ----------------------------------------------------------------------------
// Response
// ----------------------------------------------------------------------------

type DeleteGroupsResponse struct {
	ThrottleTimeMs int32
	Results        []DeletableGroupResult
}

// DeletableGroupResult is the per-group outcome of a delete. Results are a
// bag keyed by group id; callers must not rely on ordering.
type DeletableGroupResult struct {
	GroupID   string
	ErrorCode int16
}

// Response Writers

func (r *DeleteGroupsResponse) writeThrottleTime(e *Encoder) {
	e.WriteInt32(r.ThrottleTimeMs)
}

func (r *DeleteGroupsResponse) writeResults(e *Encoder) {
	e.WriteArrayLen(len(r.Results))

	for _, res := range r.Results {
		e.WriteString(res.GroupID)
		e.WriteInt16(res.ErrorCode)
	}
}

// Encode - the recipe

func EncodeDeleteGroupsResponse(e *Encoder, v int16, r *DeleteGroupsResponse) {
	r.writeThrottleTime(e)                      // v0+
	r.writeResults(e)                           // v0+
}
