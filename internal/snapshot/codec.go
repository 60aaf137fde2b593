package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
	"github.com/qti-engine/session-engine/internal/testsession"
)

// ErrMalformed indicates the byte stream does not match the layout Encode
// produces: a truncated read, an out-of-range Seeker index, or an unknown
// enum value.
var ErrMalformed = errors.New("snapshot: malformed stream")

// Codec encodes and decodes a TestSession's dynamic state against a fixed
// Seeker. The same Seeker, built from the same (Model, RouteItem) pair the
// TestSession itself was built over, must be used on both sides.
//
// The round-trip guarantee covers: testSessionState, route position/count,
// each RouteItem's static addressing, each ItemSession's attempt/duration/
// completion/variable state, and the global outcome declarations. Test/
// testPart/section duration accumulators, Pending, LastOccurrenceUpdate,
// VisitedTestParts, and Path are driver bookkeeping outside the wire format;
// Decode returns a session with those left at their zero value.
type Codec struct {
	seeker *Seeker
}

// NewCodec returns a Codec bound to seeker.
func NewCodec(seeker *Seeker) *Codec {
	return &Codec{seeker: seeker}
}

// Encode serializes ts's dynamic state to a byte stream.
func (c *Codec) Encode(ts *testsession.TestSession) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(byte(ts.State))

	items := ts.Route.Items()

	position := ts.Route.Position()
	if position > 255 {
		return nil, fmt.Errorf("%w: route position %d exceeds u8 range", ErrMalformed, position)
	}

	buf.WriteByte(byte(position))

	if len(items) > 255 {
		return nil, fmt.Errorf("%w: route count %d exceeds u8 range", ErrMalformed, len(items))
	}

	buf.WriteByte(byte(len(items)))

	for _, ri := range items {
		if err := c.encodeRouteItem(&buf, ri); err != nil {
			return nil, err
		}

		if err := c.encodeItemSession(&buf, ts, ri); err != nil {
			return nil, err
		}
	}

	for _, decl := range ts.Model.OutcomeDeclarations {
		v, err := ts.GlobalOutcomes.GetVariable(decl.Identifier)
		if err != nil {
			return nil, fmt.Errorf("%w: global outcome %q: %v", ErrMalformed, decl.Identifier, err)
		}

		if err := writeValue(&buf, v.Value); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// encodeRouteItem writes ri's static addressing: testPart index, section
// chain indices, itemRef index, occurrence, and the catalog indices of its
// effective branchRules/preConditions.
func (c *Codec) encodeRouteItem(buf *bytes.Buffer, ri route.RouteItem) error {
	tpIdx, ok := c.seeker.TestPartIndex(ri.TestPartIdentifier)
	if !ok {
		return fmt.Errorf("%w: testPart %q not in seeker", ErrMalformed, ri.TestPartIdentifier)
	}

	writeUvarint(buf, uint64(tpIdx))
	writeUvarint(buf, uint64(len(ri.SectionIdentifiers)))

	for _, section := range ri.SectionIdentifiers {
		idx, ok := c.seeker.SectionIndex(section)
		if !ok {
			return fmt.Errorf("%w: section %q not in seeker", ErrMalformed, section)
		}

		writeUvarint(buf, uint64(idx))
	}

	itemIdx, ok := c.seeker.ItemRefIndex(ri.ItemRefIdentifier)
	if !ok {
		return fmt.Errorf("%w: itemRef %q not in seeker", ErrMalformed, ri.ItemRefIdentifier)
	}

	writeUvarint(buf, uint64(itemIdx))
	writeUvarint(buf, uint64(ri.Occurrence))

	writeUvarint(buf, uint64(len(ri.BranchRules)))

	for _, br := range ri.BranchRules {
		idx, ok := c.seeker.BranchRuleIndex(br)
		if !ok {
			return fmt.Errorf("%w: branchRule targeting %q not in seeker", ErrMalformed, br.Target)
		}

		writeUvarint(buf, uint64(idx))
	}

	writeUvarint(buf, uint64(len(ri.PreConditions)))

	for _, pc := range ri.PreConditions {
		idx, ok := c.seeker.PreConditionIndex(pc)
		if !ok {
			return fmt.Errorf("%w: preCondition not in seeker", ErrMalformed)
		}

		writeUvarint(buf, uint64(idx))
	}

	return nil
}

// encodeItemSession writes the ItemSession occupying ri's slot, or a
// NotSelected placeholder with null declared variables if no session has
// been created there yet.
func (c *Codec) encodeItemSession(buf *bytes.Buffer, ts *testsession.TestSession, ri route.RouteItem) error {
	session, ok := ts.Items.GetSession(ri.ItemRefIdentifier, ri.Occurrence)

	var (
		state            qtimodel.ItemSessionState
		numAttempts      int
		dur              time.Duration
		completionStatus qtimodel.CompletionStatus
	)

	if ok {
		state = session.State
		numAttempts = session.NumAttempts
		dur = session.Duration
		completionStatus = session.CompletionStatus
	} else {
		state = qtimodel.ItemSessionStateNotSelected
		completionStatus = qtimodel.CompletionStatusNotAttempted
	}

	buf.WriteByte(byte(state))
	writeUvarint(buf, uint64(numAttempts))
	writeString(buf, formatDuration(dur))
	buf.WriteByte(byte(completionStatus))

	for _, id := range c.seeker.ResponseDeclarations(ri.ItemRefIdentifier) {
		v := declaredValue(ts, ri, session, ok, id)
		if err := writeValue(buf, v); err != nil {
			return err
		}
	}

	for _, id := range c.seeker.OutcomeDeclarations(ri.ItemRefIdentifier) {
		v := declaredValue(ts, ri, session, ok, id)
		if err := writeValue(buf, v); err != nil {
			return err
		}
	}

	return nil
}

// declaredValue returns id's current value from session if one exists, or a
// null placeholder of the declared shape otherwise. model looks up the
// declaration to get the placeholder's cardinality/baseType right.
func declaredValue(ts *testsession.TestSession, ri route.RouteItem, session *itemsession.ItemSession, hasSession bool, id string) *qtimodel.Value {
	if hasSession {
		if v, err := session.Variables.GetVariable(id); err == nil {
			return v.Value
		}
	}

	for _, decl := range ts.Model.ItemDeclarations[ri.ItemRefIdentifier] {
		if decl.Identifier == id {
			return qtimodel.NullValue(decl.Cardinality, decl.BaseType)
		}
	}

	return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeIdentifier)
}

// Decode reconstructs a TestSession from data, using model and engine for the
// pieces the stream doesn't carry (declarations, processing rules) and the
// Codec's Seeker to resolve every component-index reference back to its
// identifier. sessionID becomes the returned session's SessionID; cfg is the
// Config bitset the caller already knows from the AssessmentTest (Config is
// driver behavior, not session state, so it is not part of the wire format).
func (c *Codec) Decode(data []byte, sessionID string, model *testsession.Model, engine expression.Engine, cfg testsession.Config) (*testsession.TestSession, error) {
	r := bytes.NewReader(data)

	stateByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: testSessionState: %v", ErrMalformed, err)
	}

	positionByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: routePosition: %v", ErrMalformed, err)
	}

	countByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: routeCount: %v", ErrMalformed, err)
	}

	routeCount := int(countByte)

	items := make([]route.RouteItem, 0, routeCount)
	itemSessions := make([]decodedItemSession, 0, routeCount)

	for i := 0; i < routeCount; i++ {
		wireItem, err := c.decodeRouteItem(r)
		if err != nil {
			return nil, err
		}

		// The blueprint carries ItemSessionControl/TimeLimits, which are
		// entirely model-derived and so are never part of the wire format
		// (only testPart/section/itemRef/occurrence/branchRule/preCondition
		// are addressed there). wireItem is still fully parsed above so a
		// corrupted or mismatched stream is caught here rather than silently
		// accepted.
		ri, ok := c.seeker.ItemAt(i)
		if !ok || !routeItemsMatch(wireItem, ri) {
			return nil, fmt.Errorf("%w: route item %d does not match seeker blueprint", ErrMalformed, i)
		}

		items = append(items, ri)

		dis, err := c.decodeItemSession(r, ri, model)
		if err != nil {
			return nil, err
		}

		itemSessions = append(itemSessions, dis)
	}

	ts := testsession.New(sessionID, model, route.NewRoute(items), engine, cfg)
	ts.State = qtimodel.TestSessionState(stateByte)

	if err := ts.Route.SetPosition(int(positionByte)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for i, ri := range items {
		dis := itemSessions[i]
		if !dis.present {
			continue
		}

		session := itemsession.NewItemSession(ri.ItemRefIdentifier, ri.Occurrence, model.ItemDeclarations[ri.ItemRefIdentifier], ri.ItemSessionControl, ri.TimeLimits)
		session.State = dis.state
		session.NumAttempts = dis.numAttempts
		session.Duration = dis.duration
		session.CompletionStatus = dis.completionStatus

		for id, v := range dis.values {
			_ = session.Variables.SetVariable(id, v)
		}

		if err := ts.Items.AddSession(session, ri.Occurrence); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	for _, decl := range model.OutcomeDeclarations {
		v, err := readValue(r, decl.Cardinality, decl.BaseType)
		if err != nil {
			return nil, fmt.Errorf("%w: global outcome %q: %v", ErrMalformed, decl.Identifier, err)
		}

		if err := ts.GlobalOutcomes.SetVariable(decl.Identifier, v); err != nil {
			return nil, fmt.Errorf("%w: global outcome %q: %v", ErrMalformed, decl.Identifier, err)
		}
	}

	return ts, nil
}

// decodeRouteItem is encodeRouteItem's inverse, resolving every catalog
// index back through the Seeker.
func (c *Codec) decodeRouteItem(r *bytes.Reader) (route.RouteItem, error) {
	tpIdx, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: testPart index: %v", ErrMalformed, err)
	}

	tpID, ok := c.seeker.TestPartByIndex(int(tpIdx))
	if !ok {
		return route.RouteItem{}, fmt.Errorf("%w: testPart index %d out of range", ErrMalformed, tpIdx)
	}

	sectionCount, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: section chain length: %v", ErrMalformed, err)
	}

	sections := make([]string, 0, sectionCount)

	for i := uint64(0); i < sectionCount; i++ {
		idx, err := readUvarint(r)
		if err != nil {
			return route.RouteItem{}, fmt.Errorf("%w: section index: %v", ErrMalformed, err)
		}

		section, ok := c.seeker.SectionByIndex(int(idx))
		if !ok {
			return route.RouteItem{}, fmt.Errorf("%w: section index %d out of range", ErrMalformed, idx)
		}

		sections = append(sections, section)
	}

	itemIdx, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: itemRef index: %v", ErrMalformed, err)
	}

	itemRef, ok := c.seeker.ItemRefByIndex(int(itemIdx))
	if !ok {
		return route.RouteItem{}, fmt.Errorf("%w: itemRef index %d out of range", ErrMalformed, itemIdx)
	}

	occurrence, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: occurrence: %v", ErrMalformed, err)
	}

	branchCount, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: branchRule count: %v", ErrMalformed, err)
	}

	branchRules := make([]route.BranchRule, 0, branchCount)

	for i := uint64(0); i < branchCount; i++ {
		idx, err := readUvarint(r)
		if err != nil {
			return route.RouteItem{}, fmt.Errorf("%w: branchRule index: %v", ErrMalformed, err)
		}

		br, ok := c.seeker.BranchRuleByIndex(int(idx))
		if !ok {
			return route.RouteItem{}, fmt.Errorf("%w: branchRule index %d out of range", ErrMalformed, idx)
		}

		branchRules = append(branchRules, br)
	}

	preCount, err := readUvarint(r)
	if err != nil {
		return route.RouteItem{}, fmt.Errorf("%w: preCondition count: %v", ErrMalformed, err)
	}

	preConditions := make([]route.PreCondition, 0, preCount)

	for i := uint64(0); i < preCount; i++ {
		idx, err := readUvarint(r)
		if err != nil {
			return route.RouteItem{}, fmt.Errorf("%w: preCondition index: %v", ErrMalformed, err)
		}

		pc, ok := c.seeker.PreConditionByIndex(int(idx))
		if !ok {
			return route.RouteItem{}, fmt.Errorf("%w: preCondition index %d out of range", ErrMalformed, idx)
		}

		preConditions = append(preConditions, pc)
	}

	return route.RouteItem{
		ItemRefIdentifier:  itemRef,
		Occurrence:         int(occurrence),
		TestPartIdentifier: tpID,
		SectionIdentifiers: sections,
		PreConditions:      preConditions,
		BranchRules:        branchRules,
	}, nil
}

// routeItemsMatch compares the fields the wire format actually carries
// (wireItem) against the seeker's blueprint RouteItem, ignoring
// ItemSessionControl/TimeLimits which the blueprint alone supplies.
func routeItemsMatch(wireItem, blueprint route.RouteItem) bool {
	if wireItem.ItemRefIdentifier != blueprint.ItemRefIdentifier ||
		wireItem.Occurrence != blueprint.Occurrence ||
		wireItem.TestPartIdentifier != blueprint.TestPartIdentifier {
		return false
	}

	if len(wireItem.SectionIdentifiers) != len(blueprint.SectionIdentifiers) {
		return false
	}

	for i := range wireItem.SectionIdentifiers {
		if wireItem.SectionIdentifiers[i] != blueprint.SectionIdentifiers[i] {
			return false
		}
	}

	if len(wireItem.BranchRules) != len(blueprint.BranchRules) || len(wireItem.PreConditions) != len(blueprint.PreConditions) {
		return false
	}

	for i := range wireItem.BranchRules {
		if !reflect.DeepEqual(wireItem.BranchRules[i], blueprint.BranchRules[i]) {
			return false
		}
	}

	for i := range wireItem.PreConditions {
		if !reflect.DeepEqual(wireItem.PreConditions[i], blueprint.PreConditions[i]) {
			return false
		}
	}

	return true
}

// decodedItemSession holds one ItemSession's decoded fields before a real
// *itemsession.ItemSession is materialized, since that requires the
// RouteItem's ItemSessionControl/TimeLimits which the caller (not the wire
// format) supplies.
type decodedItemSession struct {
	present          bool
	state            qtimodel.ItemSessionState
	numAttempts      int
	duration         time.Duration
	completionStatus qtimodel.CompletionStatus
	values           map[string]*qtimodel.Value
}

func (c *Codec) decodeItemSession(r *bytes.Reader, ri route.RouteItem, model *testsession.Model) (decodedItemSession, error) {
	stateByte, err := r.ReadByte()
	if err != nil {
		return decodedItemSession{}, fmt.Errorf("%w: itemSession state: %v", ErrMalformed, err)
	}

	numAttempts, err := readUvarint(r)
	if err != nil {
		return decodedItemSession{}, fmt.Errorf("%w: numAttempts: %v", ErrMalformed, err)
	}

	durStr, err := readString(r)
	if err != nil {
		return decodedItemSession{}, fmt.Errorf("%w: duration: %v", ErrMalformed, err)
	}

	dur, err := parseDuration(durStr)
	if err != nil {
		return decodedItemSession{}, fmt.Errorf("%w: duration: %v", ErrMalformed, err)
	}

	completionByte, err := r.ReadByte()
	if err != nil {
		return decodedItemSession{}, fmt.Errorf("%w: completionStatus: %v", ErrMalformed, err)
	}

	values := make(map[string]*qtimodel.Value)

	for _, id := range responseAndOutcomeIdentifiers(model, ri.ItemRefIdentifier, true) {
		v, err := readDeclaredValue(r, model, ri.ItemRefIdentifier, id)
		if err != nil {
			return decodedItemSession{}, err
		}

		values[id] = v
	}

	for _, id := range responseAndOutcomeIdentifiers(model, ri.ItemRefIdentifier, false) {
		v, err := readDeclaredValue(r, model, ri.ItemRefIdentifier, id)
		if err != nil {
			return decodedItemSession{}, err
		}

		values[id] = v
	}

	state := qtimodel.ItemSessionState(stateByte)

	return decodedItemSession{
		present:          state != qtimodel.ItemSessionStateNotSelected || numAttempts > 0,
		state:            state,
		numAttempts:      int(numAttempts),
		duration:         dur,
		completionStatus: qtimodel.CompletionStatus(completionByte),
		values:           values,
	}, nil
}

// responseAndOutcomeIdentifiers returns itemRef's response (wantResponse
// true) or outcome (false) declared variable identifiers, in declaration
// order — the same order encodeItemSession iterates in.
func responseAndOutcomeIdentifiers(model *testsession.Model, itemRef string, wantResponse bool) []string {
	var result []string

	for _, decl := range model.ItemDeclarations[itemRef] {
		if wantResponse && decl.Kind == qtimodel.KindResponse {
			result = append(result, decl.Identifier)
		}

		if !wantResponse && decl.Kind == qtimodel.KindOutcome {
			result = append(result, decl.Identifier)
		}
	}

	return result
}

func readDeclaredValue(r *bytes.Reader, model *testsession.Model, itemRef, id string) (*qtimodel.Value, error) {
	for _, decl := range model.ItemDeclarations[itemRef] {
		if decl.Identifier == id {
			return readValue(r, decl.Cardinality, decl.BaseType)
		}
	}

	return nil, fmt.Errorf("%w: %s has no declaration %q", ErrMalformed, itemRef, id)
}

// --- primitive wire helpers ---

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}

	return string(b), nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()

	return b != 0, err
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func readInt32(r *bytes.Reader) (int32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}

	return int32(binary.BigEndian.Uint32(tmp[:])), nil
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}

	return math.Float64frombits(binary.BigEndian.Uint64(tmp[:])), nil
}

// formatDuration renders d as a minimal ISO-8601 duration ("PT<seconds>S") —
// whole item/test durations only, no calendar components.
func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	s := strconv.FormatFloat(seconds, 'f', -1, 64)

	return "PT" + s + "S"
}

func parseDuration(s string) (time.Duration, error) {
	if !strings.HasPrefix(s, "PT") || !strings.HasSuffix(s, "S") {
		return 0, fmt.Errorf("unrecognized duration literal %q", s)
	}

	num := s[2 : len(s)-1]

	seconds, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized duration literal %q: %w", s, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// writeValue writes v's null flag and, if non-null, its payload. The
// cardinality/baseType themselves are never written: both Encode and Decode
// already know them from the declaration the value belongs to, since the
// stream addresses values by declaration index rather than by name.
func writeValue(buf *bytes.Buffer, v *qtimodel.Value) error {
	writeBool(buf, v == nil || v.IsNull)

	if v == nil || v.IsNull {
		return nil
	}

	switch v.Cardinality {
	case qtimodel.CardinalitySingle:
		return writeScalar(buf, v.BaseType, v.Single)
	case qtimodel.CardinalityMultiple, qtimodel.CardinalityOrdered:
		writeUvarint(buf, uint64(len(v.Container)))

		for _, item := range v.Container {
			if err := writeScalar(buf, v.BaseType, item); err != nil {
				return err
			}
		}

		return nil
	case qtimodel.CardinalityRecord:
		writeUvarint(buf, uint64(len(v.Record)))

		for key, item := range v.Record {
			writeString(buf, key)

			bt, val := recordFieldType(item)
			buf.WriteByte(byte(bt))

			if err := writeScalar(buf, bt, val); err != nil {
				return err
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown cardinality %v", ErrMalformed, v.Cardinality)
	}
}

func readValue(r *bytes.Reader, cardinality qtimodel.Cardinality, baseType qtimodel.BaseType) (*qtimodel.Value, error) {
	isNull, err := readBool(r)
	if err != nil {
		return nil, err
	}

	if isNull {
		return qtimodel.NullValue(cardinality, baseType), nil
	}

	switch cardinality {
	case qtimodel.CardinalitySingle:
		scalar, err := readScalar(r, baseType)
		if err != nil {
			return nil, err
		}

		return qtimodel.SingleValue(baseType, scalar), nil
	case qtimodel.CardinalityMultiple, qtimodel.CardinalityOrdered:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}

		items := make([]interface{}, 0, n)

		for i := uint64(0); i < n; i++ {
			scalar, err := readScalar(r, baseType)
			if err != nil {
				return nil, err
			}

			items = append(items, scalar)
		}

		return qtimodel.ContainerValue(cardinality, baseType, items)
	case qtimodel.CardinalityRecord:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}

		fields := make(map[string]interface{}, n)

		for i := uint64(0); i < n; i++ {
			key, err := readString(r)
			if err != nil {
				return nil, err
			}

			btByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}

			scalar, err := readScalar(r, qtimodel.BaseType(btByte))
			if err != nil {
				return nil, err
			}

			fields[key] = scalar
		}

		return qtimodel.RecordValue(fields), nil
	default:
		return nil, fmt.Errorf("%w: unknown cardinality %v", ErrMalformed, cardinality)
	}
}

// recordFieldType infers a record field's baseType from its dynamic Go type,
// since record fields may mix base types and the shared declaration only
// fixes cardinality, not per-field type (qtimodel.Value doc comment).
func recordFieldType(v interface{}) (qtimodel.BaseType, interface{}) {
	switch val := v.(type) {
	case bool:
		return qtimodel.BaseTypeBoolean, val
	case int:
		return qtimodel.BaseTypeInteger, val
	case float64:
		return qtimodel.BaseTypeFloat, val
	case qtimodel.Point:
		return qtimodel.BaseTypePoint, val
	case qtimodel.Pair:
		return qtimodel.BaseTypePair, val
	case qtimodel.DirectedPair:
		return qtimodel.BaseTypeDirectedPair, val
	case time.Duration:
		return qtimodel.BaseTypeDuration, val
	default:
		return qtimodel.BaseTypeString, fmt.Sprintf("%v", v)
	}
}

func writeScalar(buf *bytes.Buffer, baseType qtimodel.BaseType, v interface{}) error {
	switch baseType {
	case qtimodel.BaseTypeBoolean:
		b, _ := v.(bool)
		writeBool(buf, b)
	case qtimodel.BaseTypeInteger:
		i, _ := v.(int)
		writeInt32(buf, int32(i))
	case qtimodel.BaseTypeFloat:
		f, _ := v.(float64)
		writeFloat64(buf, f)
	case qtimodel.BaseTypeIdentifier, qtimodel.BaseTypeString, qtimodel.BaseTypeURI, qtimodel.BaseTypeFile:
		s, _ := v.(string)
		writeString(buf, s)
	case qtimodel.BaseTypeDuration:
		d, _ := v.(time.Duration)
		writeString(buf, formatDuration(d))
	case qtimodel.BaseTypePoint:
		p, _ := v.(qtimodel.Point)
		writeInt32(buf, int32(p.X))
		writeInt32(buf, int32(p.Y))
	case qtimodel.BaseTypePair:
		p, _ := v.(qtimodel.Pair)
		writeString(buf, p.First)
		writeString(buf, p.Second)
	case qtimodel.BaseTypeDirectedPair:
		p, _ := v.(qtimodel.DirectedPair)
		writeString(buf, p.Source)
		writeString(buf, p.Destination)
	default:
		return fmt.Errorf("%w: unknown baseType %v", ErrMalformed, baseType)
	}

	return nil
}

func readScalar(r *bytes.Reader, baseType qtimodel.BaseType) (interface{}, error) {
	switch baseType {
	case qtimodel.BaseTypeBoolean:
		return readBool(r)
	case qtimodel.BaseTypeInteger:
		i, err := readInt32(r)

		return int(i), err
	case qtimodel.BaseTypeFloat:
		return readFloat64(r)
	case qtimodel.BaseTypeIdentifier, qtimodel.BaseTypeString, qtimodel.BaseTypeURI, qtimodel.BaseTypeFile:
		return readString(r)
	case qtimodel.BaseTypeDuration:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}

		return parseDuration(s)
	case qtimodel.BaseTypePoint:
		x, err := readInt32(r)
		if err != nil {
			return nil, err
		}

		y, err := readInt32(r)
		if err != nil {
			return nil, err
		}

		return qtimodel.Point{X: int(x), Y: int(y)}, nil
	case qtimodel.BaseTypePair:
		first, err := readString(r)
		if err != nil {
			return nil, err
		}

		second, err := readString(r)
		if err != nil {
			return nil, err
		}

		return qtimodel.Pair{First: first, Second: second}, nil
	case qtimodel.BaseTypeDirectedPair:
		source, err := readString(r)
		if err != nil {
			return nil, err
		}

		destination, err := readString(r)
		if err != nil {
			return nil, err
		}

		return qtimodel.DirectedPair{Source: source, Destination: destination}, nil
	default:
		return nil, fmt.Errorf("%w: unknown baseType %v", ErrMalformed, baseType)
	}
}
