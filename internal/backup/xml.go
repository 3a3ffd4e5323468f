package backup

import (
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"
	"github.com/passhport/passhportd/internal/models"
	"github.com/passhport/passhportd/internal/utils"
)

const rootTag = "passhport"

// Record is one user read back from a backup document
type Record struct {
	Username string
	Email    string
	SSHKey   string
	Comment  string
}

// buildDocument renders users as
//
//	<passhport>
//	  <user id="1">
//	    <email>..</email>
//	    <username>..</username>
//	    <sshkey fingerprint="SHA256:..">..</sshkey>
//	    <comment>..</comment>
//	  </user>
//	</passhport>
func buildDocument(users []models.User) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("count", strconv.Itoa(len(users)))

	for _, u := range users {
		el := root.CreateElement("user")
		el.CreateAttr("id", strconv.FormatInt(u.ID, 10))
		el.CreateElement("email").SetText(u.Email)
		if u.Username.Valid {
			el.CreateElement("username").SetText(u.Username.String)
		}
		key := el.CreateElement("sshkey")
		key.SetText(u.SSHKey)
		// Keys stored before strict checking may not parse.
		if fp, err := utils.Fingerprint(u.SSHKey); err == nil {
			key.CreateAttr("fingerprint", fp)
		}
		el.CreateElement("comment").SetText(u.Comment)
	}

	doc.Indent(2)
	return doc
}

// Write encodes users as an XML backup document
func Write(w io.Writer, users []models.User) error {
	if _, err := buildDocument(users).WriteTo(w); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Read parses a backup document produced by Write
func Read(r io.Reader) ([]Record, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.SelectElement(rootTag)
	if root == nil {
		return nil, fmt.Errorf("missing <%s> root element", rootTag)
	}

	elements := root.SelectElements("user")
	records := make([]Record, 0, len(elements))
	for _, el := range elements {
		records = append(records, Record{
			Username: childText(el, "username"),
			Email:    childText(el, "email"),
			SSHKey:   childText(el, "sshkey"),
			Comment:  childText(el, "comment"),
		})
	}
	return records, nil
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return child.Text()
}
