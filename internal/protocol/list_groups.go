package protocol

// ============================================================================
// ListGroups (API Key 16)
// Supported versions: 0-2
// ============================================================================

// ----------------------------------------------------------------------------
// Request
// ----------------------------------------------------------------------------

type ListGroupsRequest struct {
	StatesFilter []string // v4+
}

// Request Readers

func (r *ListGroupsRequest) readStatesFilter(d *Decoder) {
	count, _ := d.ReadInt32()
	if count < 0 {
		return
	}
	r.StatesFilter = make([]string, count)
	for i := range r.StatesFilter {
		r.StatesFilter[i], _ = d.ReadString()
	}
}

// Decode - the recipe

func DecodeListGroupsRequest(d *Decoder, v int16) (*ListGroupsRequest, error) {
	r := &ListGroupsRequest{}

	if v >= 4 {
		r.readStatesFilter(d)                   // v4+
	}

	return r, nil
}

// ----------------------------------------------------------------------------
// Response
// ----------------------------------------------------------------------------

type ListGroupsResponse struct {
	ThrottleTimeMs int32 // v1+
	ErrorCode      int16
	Groups         []ListedGroup
}

type ListedGroup struct {
	GroupID      string
	ProtocolType string
	GroupState   string // v4+
}

// Response Writers

func (r *ListGroupsResponse) writeThrottleTime(e *Encoder) {
	e.WriteInt32(r.ThrottleTimeMs)
}

func (r *ListGroupsResponse) writeErrorCode(e *Encoder) {
	e.WriteInt16(r.ErrorCode)
}

func (r *ListGroupsResponse) writeGroups(e *Encoder, version int16) {
	e.WriteArrayLen(len(r.Groups))

	for _, g := range r.Groups {
		e.WriteString(g.GroupID)
		e.WriteString(g.ProtocolType)
		if version >= 4 {
			e.WriteString(g.GroupState)          // v4+
		}
	}
}

// Encode - the recipe

func EncodeListGroupsResponse(e *Encoder, v int16, r *ListGroupsResponse) {
	if v >= 1 {
		r.writeThrottleTime(e)                  // v1+
	}
	r.writeErrorCode(e)                         // v0+
	r.writeGroups(e, v)                         // v0+
}
