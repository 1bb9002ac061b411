package usecase

import (
	"testing"

	classifierdomain "github.com/syncorch/syncd/internal/classifier/domain"
	contentdomain "github.com/syncorch/syncd/internal/content/domain"

	"github.com/stretchr/testify/assert"
)

func TestDerivedSubject_UsesColonPrefixWhenShortEnough(t *testing.T) {
	subject := derivedSubject("Re: quarterly numbers: let's sync up", "original subject")
	assert.Equal(t, "Re", subject)
}

func TestDerivedSubject_FallsBackWhenNoColon(t *testing.T) {
	subject := derivedSubject("a suggested response with no colon in it", "Original Subject")
	assert.Equal(t, "Follow-up: Original Subject", subject)
}

func TestDerivedSubject_FallsBackWhenPrefixTooLong(t *testing.T) {
	longPrefix := ""
	for i := 0; i < maxDerivedSubjectLength+1; i++ {
		longPrefix += "x"
	}
	subject := derivedSubject(longPrefix+": body", "Original")
	assert.Equal(t, "Follow-up: Original", subject)
}

func TestExtractEmails_FindsAllAddresses(t *testing.T) {
	addrs := extractEmails("please loop in alice@example.com and bob.smith@example.co.uk on this")
	assert.ElementsMatch(t, []string{"alice@example.com", "bob.smith@example.co.uk"}, addrs)
}

func TestExtractEmails_NoneFound(t *testing.T) {
	addrs := extractEmails("no addresses here")
	assert.Empty(t, addrs)
}

func TestSubjectOf_NilSubjectIsEmptyString(t *testing.T) {
	assert.Equal(t, "", subjectOf(contentdomain.Email{Subject: nil}))
	subject := "hello"
	assert.Equal(t, "hello", subjectOf(contentdomain.Email{Subject: &subject}))
}

func TestChangeTypeFor_MatchesSpecEnum(t *testing.T) {
	assert.Equal(t, "add", changeTypeFor(classifierdomain.ActionReply))
	assert.Equal(t, "add", changeTypeFor(classifierdomain.ActionForward))
	assert.Equal(t, "add", changeTypeFor(classifierdomain.ActionNewEmail))
	assert.Equal(t, "modify", changeTypeFor(classifierdomain.ActionFlagImportant))
	assert.Equal(t, "modify", changeTypeFor(classifierdomain.ActionArchive))
	assert.Equal(t, "remove", changeTypeFor(classifierdomain.ActionDelete))
}
