// Package domain holds the messenger model: conversations and their unread
// counters, groups and their roles, users and their notification rules.
// No runtime, network or storage logic belongs here.
package domain
