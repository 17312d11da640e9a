package protocol

// ============================================================================
// DescribeGroups (API Key 15)
// Supported versions: 0-4
// ============================================================================

// ----------------------------------------------------------------------------
// Request
// ----------------------------------------------------------------------------

type DescribeGroupsRequest struct {
	Groups                      []string
	IncludeAuthorizedOperations bool // v3+
}

// Request Readers

func (r *DescribeGroupsRequest) readGroups(d *Decoder) {
	count, _ := d.ReadInt32()
	if count < 0 {
		return
	}
	r.Groups = make([]string, count)
	for i := range r.Groups {
		r.Groups[i], _ = d.ReadString()
	}
}

func (r *DescribeGroupsRequest) readIncludeAuthorizedOperations(d *Decoder) {
	r.IncludeAuthorizedOperations, _ = d.ReadBool()
}

// Decode - the recipe

func DecodeDescribeGroupsRequest(d *Decoder, v int16) (*DescribeGroupsRequest, error) {
	r := &DescribeGroupsRequest{}

	r.readGroups(d)                             // v0+
	if v >= 3 {
		r.readIncludeAuthorizedOperations(d)    // v3+
	}

	return r, nil
}

// ----------------------------------------------------------------------------
// Response
// ----------------------------------------------------------------------------

type DescribeGroupsResponse struct {
	ThrottleTimeMs int32 // v1+
	Groups         []DescribedGroup
}

type DescribedGroup struct {
	ErrorCode            int16
	GroupID              string
	GroupState           string
	ProtocolType         string
	ProtocolData         string
	Members              []DescribedGroupMember
	AuthorizedOperations int32 // v3+
}

type DescribedGroupMember struct {
	MemberID        string
	GroupInstanceID string // v4+
	ClientID        string
	ClientHost      string
	Metadata        []byte
	Assignment      []byte
}

// MakeEmptyDescribedGroup builds the described-group entry for a group
// that could not be described, carrying only its id and the error.
func MakeEmptyDescribedGroup(group string, code int16) DescribedGroup {
	return DescribedGroup{
		ErrorCode:            code,
		GroupID:              group,
		GroupState:           "",
		AuthorizedOperations: -2147483648,
	}
}

// Response Writers

func (r *DescribeGroupsResponse) writeThrottleTime(e *Encoder) {
	e.WriteInt32(r.ThrottleTimeMs)
}

func (r *DescribeGroupsResponse) writeGroups(e *Encoder, version int16) {
	e.WriteArrayLen(len(r.Groups))

	for _, g := range r.Groups {
		g.writeTo(e, version)
	}
}

func (g *DescribedGroup) writeTo(e *Encoder, version int16) {
	e.WriteInt16(g.ErrorCode)
	e.WriteString(g.GroupID)
	e.WriteString(g.GroupState)
	e.WriteString(g.ProtocolType)
	e.WriteString(g.ProtocolData)

	e.WriteArrayLen(len(g.Members))
	for _, m := range g.Members {
		m.writeTo(e, version)
	}

	if version >= 3 {
		e.WriteInt32(g.AuthorizedOperations)    // v3+
	}
}

func (m *DescribedGroupMember) writeTo(e *Encoder, version int16) {
	e.WriteString(m.MemberID)
	if version >= 4 {
		e.WriteNullableString(&m.GroupInstanceID)   // v4+
	}
	e.WriteString(m.ClientID)
	e.WriteString(m.ClientHost)
	e.WriteBytes(m.Metadata)
	e.WriteBytes(m.Assignment)
}

// Encode - the recipe

func EncodeDescribeGroupsResponse(e *Encoder, v int16, r *DescribeGroupsResponse) {
	if v >= 1 {
		r.writeThrottleTime(e)                  // v1+
	}
	r.writeGroups(e, v)                         // v0+
}
