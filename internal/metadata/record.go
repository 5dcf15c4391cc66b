package metadata

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/temirov/esrctl/internal/esr"
)

const (
	esrKeyConstant                   = "esr"
	versionKeyConstant               = "version"
	bspBranchPatternKeyConstant      = "bsp-branch-pattern"
	yamlStringTagConstant            = "!!str"
	yamlIndentConstant               = 2
	notMappingReasonConstant         = "document root is not a mapping"
	readRecordErrorTemplateConstant  = "read %s: %w"
	writeRecordErrorTemplateConstant = "write %s: %w"
	recordNotMappingReasonConstant   = "esr entry is not a mapping"
)

// Record is the esr entry of a repo.yml document.
type Record struct {
	Version          string
	BSPBranchPattern string
}

// RecordESR writes the esr entry of the repo.yml at path unless one exists.
// With osVersion the meta-layer shape {version, bsp-branch-pattern} is
// written, otherwise the device shape {version}. An existing entry leaves the
// file untouched. Invalid versions yield RecordInvalid with a ValidationError.
func (mutator *Mutator) RecordESR(path string, osVersion *string, esrVersion string) (RecordOutcome, error) {
	if validationError := esr.ValidateESRVersion(esrVersion); validationError != nil {
		return RecordInvalid, validationError
	}

	contents, fileMode, readError := mutator.readFile(path)
	if readError != nil {
		return RecordInvalid, fmt.Errorf(readRecordErrorTemplateConstant, path, readError)
	}

	document, mapping, parseError := parseMappingDocument(path, contents)
	if parseError != nil {
		return RecordInvalid, parseError
	}
	if findMappingValue(mapping, esrKeyConstant) != nil {
		return RecordAlreadyRecorded, nil
	}

	recordNode := &yaml.Node{Kind: yaml.MappingNode}
	if osVersion != nil {
		if validationError := esr.ValidateOSVersion(*osVersion); validationError != nil {
			return RecordInvalid, validationError
		}
		branchPattern := esr.ESRVersion(esrVersion).BranchName()
		if validationError := esr.ValidateBSPBranchPattern(branchPattern); validationError != nil {
			return RecordInvalid, validationError
		}
		appendStringPair(recordNode, versionKeyConstant, *osVersion)
		appendStringPair(recordNode, bspBranchPatternKeyConstant, branchPattern)
	} else {
		appendStringPair(recordNode, versionKeyConstant, esrVersion)
	}
	mapping.Content = append(mapping.Content, stringNode(esrKeyConstant), recordNode)

	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return RecordInvalid, fmt.Errorf(writeRecordErrorTemplateConstant, path, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return RecordInvalid, fmt.Errorf(writeRecordErrorTemplateConstant, path, closeError)
	}
	if writeError := mutator.writeFile(path, buffer.Bytes(), fileMode); writeError != nil {
		return RecordInvalid, fmt.Errorf(writeRecordErrorTemplateConstant, path, writeError)
	}
	return RecordWritten, nil
}

// ReadRecord returns the esr entry of the repo.yml at path and whether it
// exists. Scalar text is returned verbatim so 2023.10 is not read as a number.
func (mutator *Mutator) ReadRecord(path string) (Record, bool, error) {
	contents, _, readError := mutator.readFile(path)
	if readError != nil {
		return Record{}, false, fmt.Errorf(readRecordErrorTemplateConstant, path, readError)
	}

	_, mapping, parseError := parseMappingDocument(path, contents)
	if parseError != nil {
		return Record{}, false, parseError
	}
	recordNode := findMappingValue(mapping, esrKeyConstant)
	if recordNode == nil {
		return Record{}, false, nil
	}
	if recordNode.Kind != yaml.MappingNode {
		return Record{}, true, esr.SchemaError{Path: path, Reason: recordNotMappingReasonConstant}
	}

	record := Record{}
	if versionNode := findMappingValue(recordNode, versionKeyConstant); versionNode != nil {
		record.Version = versionNode.Value
	}
	if patternNode := findMappingValue(recordNode, bspBranchPatternKeyConstant); patternNode != nil {
		record.BSPBranchPattern = patternNode.Value
	}
	return record, true, nil
}

func parseMappingDocument(path string, contents []byte) (*yaml.Node, *yaml.Node, error) {
	var document yaml.Node
	if decodeError := yaml.Unmarshal(contents, &document); decodeError != nil {
		return nil, nil, esr.SchemaError{Path: path, Reason: decodeError.Error()}
	}
	if document.Kind == 0 {
		document = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 || document.Content[0].Kind != yaml.MappingNode {
		return nil, nil, esr.SchemaError{Path: path, Reason: notMappingReasonConstant}
	}
	return &document, document.Content[0], nil
}

func findMappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for index := 0; index+1 < len(mapping.Content); index += 2 {
		if mapping.Content[index].Value == key {
			return mapping.Content[index+1]
		}
	}
	return nil
}

func appendStringPair(mapping *yaml.Node, key string, value string) {
	mapping.Content = append(mapping.Content, stringNode(key), stringNode(value))
}

func stringNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: yamlStringTagConstant, Value: value}
}
