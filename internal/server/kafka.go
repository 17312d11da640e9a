package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizkyandriawan/polylog/internal/config"
	"github.com/rizkyandriawan/polylog/internal/engine"
	"github.com/rizkyandriawan/polylog/internal/group"
	"github.com/rizkyandriawan/polylog/internal/protocol"
)

// KafkaServer handles Kafka protocol connections. Every connection is
// pinned to one execution core: its requests go through that core's group
// router.
type KafkaServer struct {
	config      *config.Config
	engine      *engine.Engine
	routers     []*group.Router
	logger      log.Logger
	tracer      trace.Tracer
	listener    net.Listener
	connections sync.Map
	connCount   int32
	connSeq     atomic.Uint64
	stopChan    chan struct{}
	wg          sync.WaitGroup

	requestsTotal *prometheus.CounterVec
	connGauge     prometheus.Gauge
}

// NewKafkaServer creates a new KafkaServer
func NewKafkaServer(cfg *config.Config, eng *engine.Engine, routers []*group.Router, logger log.Logger, reg prometheus.Registerer) *KafkaServer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &KafkaServer{
		config:   cfg,
		engine:   eng,
		routers:  routers,
		logger:   log.With(logger, "component", "kafka-server"),
		tracer:   otel.Tracer("polylog/server"),
		stopChan: make(chan struct{}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polylog_kafka_requests_total",
			Help: "Kafka protocol requests handled, by API key.",
		}, []string{"api"}),
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polylog_kafka_connections",
			Help: "Open Kafka protocol connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.requestsTotal, s.connGauge)
	}
	return s
}

// ListenAndServe starts the server
func (s *KafkaServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Server.KafkaAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
				level.Warn(s.logger).Log("msg", "accept error", "err", err)
				continue
			}
		}

		// Check connection limit
		if int(atomic.LoadInt32(&s.connCount)) >= s.config.Limits.MaxConnections {
			level.Warn(s.logger).Log("msg", "connection limit reached, rejecting")
			conn.Close()
			continue
		}

		atomic.AddInt32(&s.connCount, 1)
		s.connGauge.Inc()
		s.connections.Store(conn, true)

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Close closes the server
func (s *KafkaServer) Close() error {
	close(s.stopChan)
	if s.listener != nil {
		s.listener.Close()
	}

	// Close all connections
	s.connections.Range(func(key, value interface{}) bool {
		if conn, ok := key.(net.Conn); ok {
			conn.Close()
		}
		return true
	})

	s.wg.Wait()
	return nil
}

func (s *KafkaServer) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	router := s.routers[s.connSeq.Add(1)%uint64(len(s.routers))]
	level.Debug(s.logger).Log("msg", "new connection", "remote", remoteAddr)
	defer func() {
		level.Debug(s.logger).Log("msg", "closing connection", "remote", remoteAddr)
		conn.Close()
		s.connections.Delete(conn)
		atomic.AddInt32(&s.connCount, -1)
		s.connGauge.Dec()
		s.engine.GetPendingQueue().Remove(conn)
		s.wg.Done()
	}()

	authenticated := !s.config.Security.Enabled

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		// Read message size (4 bytes)
		sizeBuf := make([]byte, 4)
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := io.ReadFull(conn, sizeBuf)
		if err != nil {
			if err == io.EOF {
				level.Debug(s.logger).Log("msg", "client closed connection")
			} else if n > 0 {
				level.Warn(s.logger).Log("msg", "read size error", "err", err, "read", n)
			}
			return
		}

		size := int32(binary.BigEndian.Uint32(sizeBuf))
		if size < 0 || size > int32(s.config.Limits.MaxMessageSize) {
			level.Warn(s.logger).Log("msg", "invalid message size", "size", size)
			return
		}

		// Read message body
		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			level.Warn(s.logger).Log("msg", "read body error", "err", err)
			return
		}

		// Decode and handle request
		response, err := s.handleRequest(conn, router, body, &authenticated)
		if err != nil {
			level.Warn(s.logger).Log("msg", "handle error", "err", err)
			continue
		}

		if response == nil {
			// No response to send
			continue
		}

		// Write response
		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if _, err := conn.Write(response); err != nil {
			level.Warn(s.logger).Log("msg", "write error", "err", err)
			return
		}
	}
}

func apiName(key int16) string {
	switch key {
	case protocol.APIKeyProduce:
		return "produce"
	case protocol.APIKeyFetch:
		return "fetch"
	case protocol.APIKeyListOffsets:
		return "list_offsets"
	case protocol.APIKeyMetadata:
		return "metadata"
	case protocol.APIKeyOffsetCommit:
		return "offset_commit"
	case protocol.APIKeyOffsetFetch:
		return "offset_fetch"
	case protocol.APIKeyFindCoordinator:
		return "find_coordinator"
	case protocol.APIKeyJoinGroup:
		return "join_group"
	case protocol.APIKeyHeartbeat:
		return "heartbeat"
	case protocol.APIKeyLeaveGroup:
		return "leave_group"
	case protocol.APIKeySyncGroup:
		return "sync_group"
	case protocol.APIKeyDescribeGroups:
		return "describe_groups"
	case protocol.APIKeyListGroups:
		return "list_groups"
	case protocol.APIKeySaslHandshake:
		return "sasl_handshake"
	case protocol.APIKeyApiVersions:
		return "api_versions"
	case protocol.APIKeyCreateTopics:
		return "create_topics"
	case protocol.APIKeyTxnOffsetCommit:
		return "txn_offset_commit"
	case protocol.APIKeySaslAuthenticate:
		return "sasl_authenticate"
	case protocol.APIKeyDeleteGroups:
		return "delete_groups"
	default:
		return fmt.Sprintf("api_%d", key)
	}
}

func (s *KafkaServer) handleRequest(conn net.Conn, router *group.Router, body []byte, authenticated *bool) ([]byte, error) {
	decoder := protocol.NewDecoder(bytes.NewReader(body))

	// Read header
	header, err := decoder.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	name := apiName(header.APIKey)
	s.requestsTotal.WithLabelValues(name).Inc()

	_, span := s.tracer.Start(context.Background(), "kafka."+name,
		trace.WithAttributes(
			attribute.Int("kafka.api_key", int(header.APIKey)),
			attribute.Int("kafka.api_version", int(header.APIVersion)),
			attribute.String("kafka.client_id", header.ClientID),
		))
	defer span.End()

	level.Debug(s.logger).Log("msg", "request", "api", name, "version", header.APIVersion,
		"corr", header.CorrelationID, "client", header.ClientID)

	// Check authentication for non-auth APIs
	if !*authenticated && header.APIKey != protocol.APIKeySaslHandshake &&
		header.APIKey != protocol.APIKeySaslAuthenticate &&
		header.APIKey != protocol.APIKeyApiVersions {
		return s.errorResponse(header.CorrelationID, protocol.ErrSaslAuthenticationFailed), nil
	}

	// Dispatch to handler
	var resp []byte
	var handlerErr error

	switch header.APIKey {
	case protocol.APIKeyApiVersions:
		resp, handlerErr = s.handleApiVersions(header, decoder)
	case protocol.APIKeySaslHandshake:
		resp, handlerErr = s.handleSaslHandshake(header, decoder)
	case protocol.APIKeySaslAuthenticate:
		resp, handlerErr = s.handleSaslAuthenticate(header, decoder, authenticated)
	case protocol.APIKeyMetadata:
		resp, handlerErr = s.handleMetadata(header, decoder)
	case protocol.APIKeyCreateTopics:
		resp, handlerErr = s.handleCreateTopics(header, decoder)
	case protocol.APIKeyProduce:
		resp, handlerErr = s.handleProduce(header, decoder)
	case protocol.APIKeyFetch:
		resp, handlerErr = s.handleFetch(conn, header, decoder)
	case protocol.APIKeyListOffsets:
		resp, handlerErr = s.handleListOffsets(header, decoder)
	case protocol.APIKeyFindCoordinator:
		resp, handlerErr = s.handleFindCoordinator(router, header, decoder)
	case protocol.APIKeyJoinGroup:
		resp, handlerErr = s.handleJoinGroup(router, header, decoder)
	case protocol.APIKeySyncGroup:
		resp, handlerErr = s.handleSyncGroup(router, header, decoder)
	case protocol.APIKeyHeartbeat:
		resp, handlerErr = s.handleHeartbeat(router, header, decoder)
	case protocol.APIKeyLeaveGroup:
		resp, handlerErr = s.handleLeaveGroup(router, header, decoder)
	case protocol.APIKeyOffsetCommit:
		resp, handlerErr = s.handleOffsetCommit(router, header, decoder)
	case protocol.APIKeyOffsetFetch:
		resp, handlerErr = s.handleOffsetFetch(router, header, decoder)
	case protocol.APIKeyDescribeGroups:
		resp, handlerErr = s.handleDescribeGroups(router, header, decoder)
	case protocol.APIKeyListGroups:
		resp, handlerErr = s.handleListGroups(router, header, decoder)
	case protocol.APIKeyDeleteGroups:
		resp, handlerErr = s.handleDeleteGroups(router, header, decoder)
	case protocol.APIKeyTxnOffsetCommit:
		resp, handlerErr = s.handleTxnOffsetCommit(router, header, decoder)
	default:
		level.Warn(s.logger).Log("msg", "unsupported API key", "api", header.APIKey)
		return s.errorResponse(header.CorrelationID, protocol.ErrUnsupportedVersion), nil
	}

	if handlerErr != nil {
		level.Warn(s.logger).Log("msg", "handler error", "api", name, "err", handlerErr)
	}
	return resp, handlerErr
}

// ============================================================================
// API Handlers
// ============================================================================

func (s *KafkaServer) handleApiVersions(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	// Decode request (we don't really need the contents for our response)
	protocol.DecodeApiVersionsRequest(dec, header.APIVersion)

	// Build response
	resp := &protocol.ApiVersionsResponse{
		ErrorCode:      protocol.ErrNone,
		ApiVersions:    protocol.DefaultApiVersions(),
		ThrottleTimeMs: 0,
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeApiVersionsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleSaslHandshake(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	mechanism, _ := dec.ReadString()

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)

	if mechanism == "PLAIN" {
		enc.WriteInt16(protocol.ErrNone)
	} else {
		enc.WriteInt16(protocol.ErrUnsupportedSaslMechanism)
	}
	enc.WriteArrayLen(1)
	enc.WriteString("PLAIN")

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleSaslAuthenticate(header protocol.RequestHeader, dec *protocol.Decoder, authenticated *bool) ([]byte, error) {
	authBytes, _ := dec.ReadBytes()

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)

	// Parse PLAIN auth: \0username\0password
	parts := bytes.Split(authBytes, []byte{0})
	var password string
	if len(parts) >= 3 {
		password = string(parts[2])
	}

	if password == s.config.Security.Token {
		*authenticated = true
		enc.WriteInt16(protocol.ErrNone)
		enc.WriteNullableString(nil)
		enc.WriteBytes(nil)
	} else {
		enc.WriteInt16(protocol.ErrSaslAuthenticationFailed)
		errMsg := "Authentication failed"
		enc.WriteNullableString(&errMsg)
		enc.WriteBytes(nil)
	}

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleMetadata(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeMetadataRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode metadata request: %w", err)
	}

	// Get broker info
	host, port := parseAddr(s.config.Server.KafkaAddr)

	// Determine which topics to return
	var topicNames []string
	if len(req.Topics) == 0 {
		// All topics
		topicNames = s.engine.ListTopics()
	} else {
		topicNames = req.Topics
	}

	// Build response
	resp := &protocol.MetadataResponse{
		ThrottleTimeMs: 0,
		Brokers: []protocol.MetadataBroker{
			{NodeID: 0, Host: host, Port: port, Rack: nil},
		},
		ClusterID:         strPtr("polylog-cluster"),
		ControllerID:      0,
		IncludeClusterOps: req.IncludeClusterAuthorizedOperations,
		IncludeTopicOps:   req.IncludeTopicAuthorizedOperations,
	}

	for _, name := range topicNames {
		exists := s.engine.TopicExists(name)

		// Auto-create topic if it doesn't exist and auto-creation is allowed
		if !exists && req.AllowAutoTopicCreation {
			err := s.engine.CreateTopic(name)
			if err == nil {
				exists = true
				level.Debug(s.logger).Log("msg", "auto-created topic", "topic", name)
			}
		}

		topic := protocol.MetadataTopic{
			Name:       name,
			IsInternal: false,
		}

		if exists {
			topic.ErrorCode = protocol.ErrNone
			topic.Partitions = []protocol.MetadataPartition{
				{
					ErrorCode:       protocol.ErrNone,
					PartitionIndex:  0,
					LeaderID:        0,
					LeaderEpoch:     0,
					ReplicaNodes:    []int32{0},
					IsrNodes:        []int32{0},
					OfflineReplicas: []int32{},
				},
			}
		} else {
			topic.ErrorCode = protocol.ErrUnknownTopicOrPartition
			topic.Partitions = []protocol.MetadataPartition{}
		}

		resp.Topics = append(resp.Topics, topic)
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeMetadataResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleCreateTopics(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeCreateTopicsRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode create topics request: %w", err)
	}

	resp := &protocol.CreateTopicsResponse{
		ThrottleTimeMs: 0,
	}

	for _, t := range req.Topics {
		result := protocol.CreateTopicsResponseTopic{
			Name: t.Name,
		}

		err := s.engine.CreateTopic(t.Name)
		if err != nil {
			result.ErrorCode = protocol.ErrTopicAlreadyExists
		} else {
			result.ErrorCode = protocol.ErrNone
		}

		resp.Topics = append(resp.Topics, result)
	}

	enc := protocol.NewEncoder()
	if header.APIVersion >= 5 {
		enc.WriteResponseHeaderV1(header.CorrelationID)
	} else {
		enc.WriteResponseHeader(header.CorrelationID)
	}
	protocol.EncodeCreateTopicsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleProduce(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeProduceRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode produce request: %w", err)
	}

	resp := &protocol.ProduceResponse{
		ThrottleTimeMs: 0,
	}

	for _, t := range req.Topics {
		topicResp := protocol.ProduceResponseTopic{
			Name: t.Name,
		}

		for _, p := range t.Partitions {
			partResp := protocol.ProduceResponsePartition{
				Index:           p.Index,
				LogAppendTimeMs: -1,
				LogStartOffset:  0,
			}

			// Extract codec from record batch attributes
			codec := protocol.BatchCodec(p.Records)

			// Store raw (passthrough)
			baseOffset, err := s.engine.ProduceRaw(t.Name, p.Records, codec, 1)
			if err != nil {
				partResp.ErrorCode = protocol.ErrUnknownTopicOrPartition
			} else {
				partResp.ErrorCode = protocol.ErrNone
				partResp.BaseOffset = baseOffset
			}

			topicResp.Partitions = append(topicResp.Partitions, partResp)
		}

		resp.Topics = append(resp.Topics, topicResp)
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeProduceResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleFetch(conn net.Conn, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeFetchRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode fetch request: %w", err)
	}

	resp := &protocol.FetchResponse{
		ThrottleTimeMs: 0,
		ErrorCode:      protocol.ErrNone,
		SessionID:      0,
	}

	for _, t := range req.Topics {
		topicResp := protocol.FetchResponseTopic{
			Name: t.Name,
		}

		for _, p := range t.Partitions {
			partResp := protocol.FetchResponsePartition{
				Index:                p.Index,
				PreferredReadReplica: -1,
			}

			if !s.engine.TopicExists(t.Name) {
				partResp.ErrorCode = protocol.ErrUnknownTopicOrPartition
			} else {
				records, _ := s.engine.Fetch(t.Name, p.FetchOffset, 100)
				latest, _ := s.engine.LatestOffset(t.Name)
				earliest, _ := s.engine.EarliestOffset(t.Name)

				partResp.ErrorCode = protocol.ErrNone
				partResp.HighWatermark = latest + 1
				partResp.LastStableOffset = latest + 1
				partResp.LogStartOffset = earliest

				if len(records) > 0 {
					// Return the raw batch data with patched baseOffset
					batchData := make([]byte, len(records[0].Value))
					copy(batchData, records[0].Value)
					if len(batchData) >= 8 {
						binary.BigEndian.PutUint64(batchData[0:8], uint64(records[0].Offset))
					}
					partResp.Records = batchData
				}
			}

			topicResp.Partitions = append(topicResp.Partitions, partResp)
		}

		resp.Topics = append(resp.Topics, topicResp)
	}

	// Long-polling is disabled to avoid out-of-order responses on the same
	// connection. Clients will retry with a short poll interval.
	// TODO: Implement proper request pipelining with ordered response delivery.

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeFetchResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleListOffsets(header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeListOffsetsRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode list offsets request: %w", err)
	}

	resp := &protocol.ListOffsetsResponse{
		ThrottleTimeMs: 0,
	}

	for _, t := range req.Topics {
		topicResp := protocol.ListOffsetsResponseTopic{
			Name: t.Name,
		}

		for _, p := range t.Partitions {
			partResp := protocol.ListOffsetsResponsePartition{
				PartitionIndex: p.PartitionIndex,
				LeaderEpoch:    -1,
			}

			var offset int64
			var err error

			if p.Timestamp == protocol.OffsetLatest {
				offset, err = s.engine.LatestOffset(t.Name)
				if err == nil {
					offset++ // next offset
				}
			} else if p.Timestamp == protocol.OffsetEarliest {
				offset, err = s.engine.EarliestOffset(t.Name)
			}

			if err != nil {
				partResp.ErrorCode = protocol.ErrUnknownTopicOrPartition
			} else {
				partResp.ErrorCode = protocol.ErrNone
				partResp.Timestamp = p.Timestamp
				partResp.Offset = offset
			}

			topicResp.Partitions = append(topicResp.Partitions, partResp)
		}

		resp.Topics = append(resp.Topics, topicResp)
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeListOffsetsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleFindCoordinator(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeFindCoordinatorRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode find coordinator request: %w", err)
	}

	// a single-broker deployment coordinates every mappable group itself
	var resp *protocol.FindCoordinatorResponse
	if _, _, ok := router.ShardFor(req.Key); ok {
		host, port := parseAddr(s.config.Server.KafkaAddr)
		resp = &protocol.FindCoordinatorResponse{
			ErrorCode: protocol.ErrNone,
			NodeID:    0,
			Host:      host,
			Port:      port,
		}
	} else {
		resp = protocol.NewFindCoordinatorErrorResponse(req, protocol.ErrCoordinatorNotAvailable)
	}

	enc := protocol.NewEncoder()
	if header.APIVersion >= 3 {
		enc.WriteResponseHeaderV1(header.CorrelationID)
	} else {
		enc.WriteResponseHeader(header.CorrelationID)
	}
	protocol.EncodeFindCoordinatorResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleJoinGroup(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeJoinGroupRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode join group request: %w", err)
	}

	resp, err := router.JoinGroup(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeJoinGroupResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleSyncGroup(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeSyncGroupRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode sync group request: %w", err)
	}

	resp, err := router.SyncGroup(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeSyncGroupResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleHeartbeat(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeHeartbeatRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode heartbeat request: %w", err)
	}

	resp, err := router.Heartbeat(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeHeartbeatResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleLeaveGroup(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeLeaveGroupRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode leave group request: %w", err)
	}

	resp, err := router.LeaveGroup(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeLeaveGroupResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleOffsetCommit(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeOffsetCommitRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode offset commit request: %w", err)
	}

	// the response goes to the client once the commit is durable
	stages := router.OffsetCommit(req)
	resp, err := stages.Committed.Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeOffsetCommitResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleOffsetFetch(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeOffsetFetchRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode offset fetch request: %w", err)
	}

	resp, err := router.OffsetFetch(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeOffsetFetchResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleDescribeGroups(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeDescribeGroupsRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode describe groups request: %w", err)
	}

	resp := &protocol.DescribeGroupsResponse{}
	for _, g := range req.Groups {
		described, err := router.DescribeGroup(g).Wait()
		if err != nil {
			described = protocol.MakeEmptyDescribedGroup(g, protocol.ErrCoordinatorNotAvailable)
		}
		resp.Groups = append(resp.Groups, described)
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeDescribeGroupsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleListGroups(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	if _, err := protocol.DecodeListGroupsRequest(dec, header.APIVersion); err != nil {
		return nil, fmt.Errorf("decode list groups request: %w", err)
	}

	result, err := router.ListGroups().Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	resp := &protocol.ListGroupsResponse{
		ErrorCode: result.ErrorCode,
		Groups:    result.Groups,
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeListGroupsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleDeleteGroups(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeDeleteGroupsRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode delete groups request: %w", err)
	}

	results, err := router.DeleteGroups(req.GroupsNames).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	resp := &protocol.DeleteGroupsResponse{Results: results}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeDeleteGroupsResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

func (s *KafkaServer) handleTxnOffsetCommit(router *group.Router, header protocol.RequestHeader, dec *protocol.Decoder) ([]byte, error) {
	req, err := protocol.DecodeTxnOffsetCommitRequest(dec, header.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("decode txn offset commit request: %w", err)
	}

	resp, err := router.TxnOffsetCommit(req).Wait()
	if err != nil {
		return s.errorResponse(header.CorrelationID, protocol.ErrCoordinatorNotAvailable), nil
	}

	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(header.CorrelationID)
	protocol.EncodeTxnOffsetCommitResponse(enc, header.APIVersion, resp)

	return s.wrapResponse(enc.Bytes()), nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *KafkaServer) errorResponse(correlationID int32, errorCode int16) []byte {
	enc := protocol.NewEncoder()
	enc.WriteResponseHeader(correlationID)
	enc.WriteInt16(errorCode)
	return s.wrapResponse(enc.Bytes())
}

func (s *KafkaServer) wrapResponse(body []byte) []byte {
	size := len(body)
	result := make([]byte, 4+size)
	binary.BigEndian.PutUint32(result[:4], uint32(size))
	copy(result[4:], body)
	return result
}

func parseAddr(addr string) (string, int32) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "localhost", 9092
	}
	if host == "" {
		host = "localhost"
	}
	var port int32 = 9092
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func strPtr(s string) *string {
	return &s
}
