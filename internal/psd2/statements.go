package psd2

import (
	"fmt"

	"github.com/evidenceledger/psd2attr/internal/errl"
	"github.com/evidenceledger/psd2attr/internal/util/der"
)

// RoleEntry is one RoleOfPSP.
type RoleEntry struct {
	OID  string `json:"oid"`
	Name string `json:"name"`
}

// Statement is a decoded PSD2 QCStatement.
//
//	PSD2QcType ::= SEQUENCE {
//	    rolesOfPSP RolesOfPSP,
//	    nCAName    NCAName,
//	    nCAId      NCAId }
//	RolesOfPSP ::= SEQUENCE OF RoleOfPSP
//	RoleOfPSP  ::= SEQUENCE { roleOfPspOid OBJECT IDENTIFIER, roleOfPspName UTF8String }
type Statement struct {
	Roles   []RoleEntry `json:"roles"`
	NCAName string      `json:"nca_name,omitempty"`
	NCAId   string      `json:"nca_id,omitempty"`
}

// Roles returns the PSD2 role names in the order they are encoded, across
// all PSD2 statements. A certificate without QCStatements has no roles.
func (e *Extractor) Roles(cert Certificate) ([]string, error) {
	statements, err := e.Statements(cert)
	if err != nil {
		return nil, err
	}

	roles := []string{}
	for _, st := range statements {
		for _, r := range st.Roles {
			roles = append(roles, r.Name)
		}
	}
	return roles, nil
}

// Statements decodes every PSD2 statement of the QCStatements extension.
// Statements with another id are ignored. Role entries that do not have
// exactly two elements are skipped and reported to the diagnostic callback;
// any other deviation from the schema fails with a *MalformedError.
func (e *Extractor) Statements(cert Certificate) ([]Statement, error) {
	raw, ok := cert.ExtensionValue(OIDQcStatements)
	if !ok {
		return nil, nil
	}

	// The extension value is the extnValue OCTET STRING, whose content is
	// the DER of QCStatements ::= SEQUENCE OF QCStatement.
	envelope, err := der.Decode(raw)
	if err != nil {
		return nil, errl.Error(&MalformedError{Field: "extnValue", Err: err})
	}

	var content []byte
	switch v := envelope.(type) {
	case der.OctetString:
		content = v
	default:
		return nil, mismatch("extnValue", "OCTET STRING", v)
	}

	decoded, err := der.Decode(content)
	if err != nil {
		return nil, errl.Error(&MalformedError{Field: "QCStatements", Err: err})
	}

	var qcStatements der.Sequence
	switch v := decoded.(type) {
	case der.Sequence:
		qcStatements = v
	default:
		return nil, mismatch("QCStatements", "SEQUENCE", v)
	}

	var out []Statement
	for i, elem := range qcStatements {
		id, info, err := splitStatement(i, elem)
		if err != nil {
			return nil, err
		}
		if id != OIDPSD2Statement {
			continue
		}

		st, err := e.parsePSD2Statement(i, info)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}

	return out, nil
}

// splitStatement reads QCStatement ::= SEQUENCE { statementId OBJECT IDENTIFIER,
// statementInfo ANY OPTIONAL }. A nil info means it was absent.
func splitStatement(i int, elem der.Value) (string, der.Value, error) {
	field := fmt.Sprintf("QCStatements[%d]", i)

	statement, ok := elem.(der.Sequence)
	if !ok {
		return "", nil, mismatch(field, "SEQUENCE", elem)
	}
	if len(statement) == 0 {
		return "", nil, mismatch(field+".statementId", "OBJECT IDENTIFIER", nil)
	}

	id, ok := statement[0].(der.ObjectIdentifier)
	if !ok {
		return "", nil, mismatch(field+".statementId", "OBJECT IDENTIFIER", statement[0])
	}

	var info der.Value
	if len(statement) > 1 {
		info = statement[1]
	}
	return string(id), info, nil
}

func (e *Extractor) parsePSD2Statement(i int, info der.Value) (Statement, error) {
	field := fmt.Sprintf("QCStatements[%d].statementInfo", i)

	var qcType der.Sequence
	switch v := info.(type) {
	case der.Sequence:
		qcType = v
	default:
		return Statement{}, mismatch(field, "SEQUENCE", v)
	}

	if len(qcType) == 0 {
		return Statement{}, mismatch(field+".rolesOfPSP", "SEQUENCE", nil)
	}

	var rolesOfPSP der.Sequence
	switch v := qcType[0].(type) {
	case der.Sequence:
		rolesOfPSP = v
	default:
		return Statement{}, mismatch(field+".rolesOfPSP", "SEQUENCE", v)
	}

	st := Statement{Roles: []RoleEntry{}}
	for j, entry := range rolesOfPSP {
		entryField := fmt.Sprintf("%s.rolesOfPSP[%d]", field, j)

		pair, ok := entry.(der.Sequence)
		if !ok {
			return Statement{}, mismatch(entryField, "SEQUENCE", entry)
		}

		if len(pair) != 2 {
			e.diagnose(Diagnostic{
				Statement: i,
				Entry:     j,
				Size:      len(pair),
				Message:   fmt.Sprintf("unexpected size of PSD2 role pair: %d", len(pair)),
			})
			continue
		}

		oid, ok := pair[0].(der.ObjectIdentifier)
		if !ok {
			return Statement{}, mismatch(entryField+".roleOfPspOid", "OBJECT IDENTIFIER", pair[0])
		}
		name, ok := pair[1].(der.UTF8String)
		if !ok {
			return Statement{}, mismatch(entryField+".roleOfPspName", "UTF8String", pair[1])
		}

		st.Roles = append(st.Roles, RoleEntry{OID: string(oid), Name: string(name)})
	}

	// The NCA fields are informative; other encodings are ignored.
	if len(qcType) > 1 {
		if s, ok := qcType[1].(der.UTF8String); ok {
			st.NCAName = string(s)
		}
	}
	if len(qcType) > 2 {
		if s, ok := qcType[2].(der.UTF8String); ok {
			st.NCAId = string(s)
		}
	}

	return st, nil
}
